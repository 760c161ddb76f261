package credential

import "context"

// OpRecorder receives the outcome of credential store operations. Implemented
// by the process metrics; a nil recorder disables instrumentation.
type OpRecorder interface {
	RecordCredentialOp(ctx context.Context, op string, err error)
}

// instrumentedStore wraps a [Store] and records every operation's outcome.
type instrumentedStore struct {
	store Store
	rec   OpRecorder
}

// WithMetrics wraps store so that every Get, Set, and Delete records its
// outcome to rec. A nil rec returns store unwrapped.
func WithMetrics(store Store, rec OpRecorder) Store {
	if rec == nil {
		return store
	}
	return &instrumentedStore{store: store, rec: rec}
}

func (s *instrumentedStore) Get(ctx context.Context, callerID, integrationID string) (string, error) {
	secret, err := s.store.Get(ctx, callerID, integrationID)
	s.rec.RecordCredentialOp(ctx, "get", err)
	return secret, err
}

func (s *instrumentedStore) Set(ctx context.Context, callerID, integrationID, secret string) error {
	err := s.store.Set(ctx, callerID, integrationID, secret)
	s.rec.RecordCredentialOp(ctx, "set", err)
	return err
}

func (s *instrumentedStore) Delete(ctx context.Context, callerID, integrationID string) error {
	err := s.store.Delete(ctx, callerID, integrationID)
	s.rec.RecordCredentialOp(ctx, "delete", err)
	return err
}
