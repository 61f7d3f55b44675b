package keypackage

import (
	"errors"

	"go.uber.org/zap"

	"mlsgroup/internal/domain/interfaces"
	"mlsgroup/internal/domain/types"
	"mlsgroup/internal/message"
)

// MaxBatch bounds one Generate call.
const MaxBatch = 100

var errBatchSize = errors.New("key package count must be between 1 and 100")

// Service creates key packages through an engine.
type Service struct {
	engine interfaces.Engine
	logger *zap.Logger
}

func New(engine interfaces.Engine, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{engine: engine, logger: logger}
}

// Generate creates n key packages. Each one is single use: it is deleted
// from storage when a Welcome that consumes it is joined.
func (s *Service) Generate(n int) ([]*message.Message, error) {
	const op = "generate key packages"
	if n < 1 || n > MaxBatch {
		return nil, types.E(types.KindUsage, op, errBatchSize)
	}
	out := make([]*message.Message, 0, n)
	for i := 0; i < n; i++ {
		kp, err := s.engine.GenerateKeyPackage()
		if err != nil {
			return nil, types.E(types.KindProtocol, op, err)
		}
		m, err := message.New(kp)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	s.logger.Debug("key packages generated", zap.Int("count", n))
	return out, nil
}
