package app

import (
	"mlsgroup/internal/domain"
	clientsvc "mlsgroup/internal/services/client"
)

// App is the unlocked state of one participant.
type App struct {
	Identity domain.LocalIdentity
	Client   *clientsvc.Client
}

func New(id domain.LocalIdentity, c *clientsvc.Client) *App {
	return &App{Identity: id, Client: c}
}
