package client

import (
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"mlsgroup/internal/domain/interfaces"
	"mlsgroup/internal/domain/types"
	"mlsgroup/internal/message"
	"mlsgroup/internal/metrics"
	"mlsgroup/internal/protocol/wire"
	"mlsgroup/internal/services/group"
	"mlsgroup/internal/services/keypackage"
)

// DefaultCacheSize is the number of open sessions kept when Config leaves
// CacheSize unset.
const DefaultCacheSize = 128

// Config wires a Client.
type Config struct {
	Engine  interfaces.Engine
	Storage interfaces.GroupStateStorage

	Logger  *zap.Logger
	Metrics *metrics.GroupMetrics
	// CacheSize bounds the open session cache.
	CacheSize int
}

// Client is one participant's view of all its groups. It is safe for
// concurrent use.
type Client struct {
	engine      interfaces.Engine
	storage     interfaces.GroupStateStorage
	keyPackages *keypackage.Service
	logger      *zap.Logger
	metrics     *metrics.GroupMetrics

	sessions *lru.Cache[string, *group.Group]
	loads    singleflight.Group
}

func New(cfg Config) (*Client, error) {
	if cfg.Engine == nil {
		return nil, errors.New("client: engine is required")
	}
	if cfg.Storage == nil {
		return nil, errors.New("client: group state storage is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	sessions, err := lru.New[string, *group.Group](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("client: session cache: %w", err)
	}
	return &Client{
		engine:      cfg.Engine,
		storage:     cfg.Storage,
		keyPackages: keypackage.New(cfg.Engine, cfg.Logger),
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		sessions:    sessions,
	}, nil
}

// GenerateKeyPackage creates one key package and stores its private keys.
func (c *Client) GenerateKeyPackage() (*message.Message, error) {
	kps, err := c.keyPackages.Generate(1)
	if err != nil {
		return nil, err
	}
	return kps[0], nil
}

// GenerateKeyPackages creates n key packages.
func (c *Client) GenerateKeyPackages(n int) ([]*message.Message, error) {
	return c.keyPackages.Generate(n)
}

// CreateGroup starts a group at epoch 0 with the local member alone at
// index 0. A nil groupID lets the engine pick a unique one. The new group
// is not persisted, and LoadGroup does not find it, until WriteToStorage
// is called.
func (c *Client) CreateGroup(groupID []byte, extensions types.ExtensionList) (*group.Group, error) {
	ge, err := c.engine.CreateGroup(groupID, extensions)
	if err != nil {
		return nil, types.E(types.KindProtocol, "create group", err)
	}
	return c.open(ge, false), nil
}

// JoinGroup joins the group described by welcome. It also returns the
// group info extensions the inviter published.
func (c *Client) JoinGroup(welcome *message.Message) (*group.Group, types.ExtensionList, error) {
	const op = "join group"
	if welcome == nil || welcome.WireFormat() != wire.WireFormatWelcome {
		return nil, nil, types.E(types.KindProtocol, op, types.ErrUnexpectedMessageFormat)
	}
	ge, ext, err := c.engine.JoinGroup(welcome.Wire())
	if err != nil {
		return nil, nil, types.E(types.KindProtocol, op, err)
	}
	return c.open(ge, false), ext, nil
}

// LoadGroup returns the session for groupID as last written to storage.
// A cached session is reused only while its epoch matches the newest stored
// epoch; otherwise, or if it is poisoned, it is dropped and restored again.
// Concurrent loads of one group share a single restore.
func (c *Client) LoadGroup(groupID []byte) (*group.Group, error) {
	const op = "load group"
	key := string(groupID)
	if g, ok, err := c.cached(op, groupID); err != nil || ok {
		return g, err
	}
	v, err, _ := c.loads.Do(key, func() (any, error) {
		if g, ok, err := c.cached(op, groupID); err != nil || ok {
			return g, err
		}
		state, ok, err := c.storage.State(groupID)
		if err != nil {
			return nil, types.E(types.KindStorage, op, err)
		}
		if !ok {
			return nil, types.E(types.KindStorage, op, fmt.Errorf("group %x: %w", groupID, types.ErrNotFound))
		}
		ge, err := c.engine.LoadGroup(state, func(epochID uint64) ([]byte, error) {
			data, ok, err := c.storage.Epoch(groupID, epochID)
			if err != nil {
				return nil, types.E(types.KindStorage, op, err)
			}
			if !ok {
				return nil, types.E(types.KindStorage, op, fmt.Errorf("epoch %d: %w", epochID, types.ErrNotFound))
			}
			return data, nil
		})
		if err != nil {
			return nil, types.E(types.KindProtocol, op, err)
		}
		c.logger.Debug("group loaded", zap.String("group_id", hex.EncodeToString(groupID)))
		return c.open(ge, true), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*group.Group), nil
}

// Close drops the cached session for groupID. Handles already returned
// stay usable.
func (c *Client) Close(groupID []byte) {
	c.sessions.Remove(string(groupID))
}

// cached returns the cached session for groupID if storage still holds
// its current epoch. A group missing from storage is reported as not found.
func (c *Client) cached(op string, groupID []byte) (*group.Group, bool, error) {
	key := string(groupID)
	g, ok := c.sessions.Get(key)
	if !ok {
		return nil, false, nil
	}
	maxID, stored, err := c.storage.MaxEpochID(groupID)
	if err != nil {
		return nil, false, types.E(types.KindStorage, op, err)
	}
	if !stored {
		c.sessions.Remove(key)
		return nil, false, types.E(types.KindStorage, op, fmt.Errorf("group %x: %w", groupID, types.ErrNotFound))
	}
	if g.Poisoned() || g.CurrentEpoch() != maxID {
		c.sessions.Remove(key)
		return nil, false, nil
	}
	return g, true, nil
}

// open wraps ge in a session. Only sessions restored from storage are
// cached.
func (c *Client) open(ge interfaces.GroupEngine, cache bool) *group.Group {
	g := group.New(ge, c.storage, group.WithLogger(c.logger), group.WithMetrics(c.metrics))
	if cache {
		c.sessions.Add(string(g.GroupID()), g)
	}
	return g
}
