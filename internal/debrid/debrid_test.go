package debrid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeClient struct{ name string }

func (f *fakeClient) Name() string { return f.name }
func (f *fakeClient) Validate(ctx context.Context) (bool, error)                 { return true, nil }
func (f *fakeClient) CheckCache(ctx context.Context, infoHash string) (*CacheResult, error) {
	return &CacheResult{IsCached: true}, nil
}
func (f *fakeClient) Submit(ctx context.Context, magnetOrHash string) (string, error) {
	return "remote-1", nil
}
func (f *fakeClient) SelectFiles(ctx context.Context, remoteID string, fileIndices []int) error {
	return nil
}
func (f *fakeClient) Progress(ctx context.Context, remoteID string) (*Progress, error) {
	return &Progress{Status: Downloading}, nil
}
func (f *fakeClient) Links(ctx context.Context, remoteID string) ([]DownloadLink, error) {
	return nil, nil
}
func (f *fakeClient) List(ctx context.Context) ([]RemoteTransfer, error) { return nil, nil }
func (f *fakeClient) Delete(ctx context.Context, remoteID string) error  { return nil }

func TestRegistryRegisterGetUnregister(t *testing.T) {
	assert := require.New(t)
	r := NewRegistry()

	_, ok := r.Get("real-debrid")
	assert.False(ok)

	r.Register(&fakeClient{name: "real-debrid"})
	c, ok := r.Get("real-debrid")
	assert.True(ok)
	assert.Equal("real-debrid", c.Name())

	r.Unregister("real-debrid")
	_, ok = r.Get("real-debrid")
	assert.False(ok)
}

func TestRegistryProvidersListsEveryRegisteredClient(t *testing.T) {
	assert := require.New(t)
	r := NewRegistry()
	r.Register(&fakeClient{name: "real-debrid"})
	r.Register(&fakeClient{name: "torbox"})

	providers := r.Providers()
	assert.ElementsMatch([]string{"real-debrid", "torbox"}, providers)
}

func TestRegisterOverwritesSameProviderName(t *testing.T) {
	assert := require.New(t)
	r := NewRegistry()
	r.Register(&fakeClient{name: "torbox"})
	r.Register(&fakeClient{name: "torbox"})
	assert.Len(r.Providers(), 1)
}
