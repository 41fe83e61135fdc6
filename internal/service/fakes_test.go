package service

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/auralis/api/internal/client"
)

type fakeGenerator struct {
	configured bool

	mu        sync.Mutex
	lastReq   *client.CreatePredictionRequest
	createRes *client.Prediction
	createErr error
	getRes    *client.Prediction
	getErr    error
	getBlock  chan struct{}

	creates atomic.Int32
	gets    atomic.Int32
}

func (f *fakeGenerator) CreatePrediction(_ context.Context, req *client.CreatePredictionRequest) (*client.Prediction, error) {
	f.creates.Add(1)
	f.mu.Lock()
	f.lastReq = req
	f.mu.Unlock()
	return f.createRes, f.createErr
}

func (f *fakeGenerator) GetPrediction(_ context.Context, _ string) (*client.Prediction, error) {
	f.gets.Add(1)
	if f.getBlock != nil {
		<-f.getBlock
	}
	return f.getRes, f.getErr
}

func (f *fakeGenerator) IsConfigured() bool {
	return f.configured
}
