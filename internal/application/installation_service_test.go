package application

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/ports"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type installFixture struct {
	*harness
	oauth    *fakeOAuth
	webhooks *fakeWebhooks
	svc      *InstallationService
}

func newInstallFixture(t *testing.T) *installFixture {
	h := newHarness(t)
	f := &installFixture{
		harness:  h,
		oauth:    &fakeOAuth{validSig: true, grant: &ports.AccessGrant{AccessToken: "shpat_new", Scopes: []string{"read_products"}}},
		webhooks: &fakeWebhooks{},
	}
	f.svc = NewInstallationService(
		h.installations, h.states, h.connections, f.oauth, f.webhooks, h.vault, nil, h.activity,
		zerolog.Nop(), []string{"read_products", "write_products"}, time.Minute,
	)
	return f
}

func (f *installFixture) begin(shop string) string {
	f.t.Helper()
	authURL, err := f.svc.BeginAuthorization(context.Background(), shop, "")
	require.NoError(f.t, err)
	u, err := url.Parse(authURL)
	require.NoError(f.t, err)
	return u.Query().Get("state")
}

func callback(shop, state string) CallbackParams {
	return CallbackParams{Shop: shop, State: state, Code: "code", Query: url.Values{"shop": {shop}, "state": {state}}}
}

func TestBeginAuthorizationRejectsInvalidShop(t *testing.T) {
	f := newInstallFixture(t)
	_, err := f.svc.BeginAuthorization(context.Background(), "evil.example.com", "")
	assert.ErrorIs(t, err, domain.ErrInvalidShopDomain)
}

func TestCompleteAuthorizationStoresSealedToken(t *testing.T) {
	f := newInstallFixture(t)
	state := f.begin("Brand.MyShopify.com")

	inst, err := f.svc.CompleteAuthorization(context.Background(), callback(sourceShop, state))
	require.NoError(t, err)
	assert.Equal(t, sourceShop, inst.Shop)

	stored, err := f.installations.Get(context.Background(), sourceShop)
	require.NoError(t, err)
	assert.Equal(t, "enc:shpat_new", stored.AccessToken)
	assert.True(t, stored.WebhooksRegistered)
	assert.Equal(t, 1, f.webhooks.calls)

	token, err := f.svc.AccessToken(context.Background(), sourceShop)
	require.NoError(t, err)
	assert.Equal(t, "shpat_new", token)
}

func TestCompleteAuthorizationStateIsSingleUse(t *testing.T) {
	f := newInstallFixture(t)
	state := f.begin(sourceShop)

	_, err := f.svc.CompleteAuthorization(context.Background(), callback(sourceShop, state))
	require.NoError(t, err)

	_, err = f.svc.CompleteAuthorization(context.Background(), callback(sourceShop, state))
	assert.ErrorIs(t, err, domain.ErrStateMismatch)
	assert.Equal(t, 1, f.oauth.exchanges)
}

func TestCompleteAuthorizationConcurrentReplay(t *testing.T) {
	f := newInstallFixture(t)
	state := f.begin(sourceShop)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CompleteAuthorization(context.Background(), callback(sourceShop, state))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else {
				assert.ErrorIs(t, err, domain.ErrStateMismatch)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
}

func TestCompleteAuthorizationRejections(t *testing.T) {
	t.Run("foreign shop", func(t *testing.T) {
		f := newInstallFixture(t)
		state := f.begin(sourceShop)
		_, err := f.svc.CompleteAuthorization(context.Background(), callback(destShop, state))
		assert.ErrorIs(t, err, domain.ErrStateMismatch)
	})

	t.Run("expired state", func(t *testing.T) {
		f := newInstallFixture(t)
		state := f.begin(sourceShop)
		f.svc.now = func() time.Time { return time.Now().Add(time.Hour) }
		_, err := f.svc.CompleteAuthorization(context.Background(), callback(sourceShop, state))
		assert.ErrorIs(t, err, domain.ErrStateExpired)
		assert.Zero(t, f.oauth.exchanges)
	})

	t.Run("bad signature", func(t *testing.T) {
		f := newInstallFixture(t)
		f.oauth.validSig = false
		state := f.begin(sourceShop)
		_, err := f.svc.CompleteAuthorization(context.Background(), callback(sourceShop, state))
		assert.ErrorIs(t, err, domain.ErrSignatureInvalid)
		assert.Zero(t, f.oauth.exchanges)
	})

	t.Run("token exchange hides upstream body", func(t *testing.T) {
		f := newInstallFixture(t)
		f.oauth.err = &domain.TokenExchangeError{Status: 400, Body: `{"error":"invalid_request","secret":"s3"}`}
		state := f.begin(sourceShop)
		_, err := f.svc.CompleteAuthorization(context.Background(), callback(sourceShop, state))
		require.ErrorIs(t, err, domain.ErrTokenExchangeFailed)
		assert.False(t, strings.Contains(err.Error(), "s3"))

		inst, err := f.installations.Get(context.Background(), sourceShop)
		require.NoError(t, err)
		assert.Nil(t, inst)
	})
}

func TestReauthorizationReactivatesRejectedConnections(t *testing.T) {
	f := newInstallFixture(t)
	conn := f.connection(domain.SyncRules{})
	ctx := context.Background()
	require.NoError(t, f.connections.UpdateStatus(ctx, conn.ID, domain.ConnectionDisabled, domain.StatusReasonCredentialRejected))
	require.NoError(t, f.svc.MarkUninstalled(ctx, sourceShop))

	status, err := f.svc.GetInstallationStatus(ctx, sourceShop)
	require.NoError(t, err)
	assert.True(t, status.NeedsReinstall)

	state := f.begin(sourceShop)
	_, err = f.svc.CompleteAuthorization(ctx, callback(sourceShop, state))
	require.NoError(t, err)

	stored, err := f.connections.Get(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConnectionActive, stored.Status)
	assert.Equal(t, 1, f.webhooks.calls, "a stale installation re-registers webhooks")

	status, err = f.svc.GetInstallationStatus(ctx, sourceShop)
	require.NoError(t, err)
	assert.False(t, status.NeedsReinstall)
}

func TestReinstallSkipsRegisteredWebhooks(t *testing.T) {
	f := newInstallFixture(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		state := f.begin(sourceShop)
		_, err := f.svc.CompleteAuthorization(ctx, callback(sourceShop, state))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.webhooks.calls)
}

func TestRejectedDestinationCredentialBlocksUntilReauthorized(t *testing.T) {
	f := newInstallFixture(t)
	conn := f.connection(domain.SyncRules{CreateMissing: true})
	f.source.put(item("A", "1.00", 1))
	f.destination.fail("create", "A", domain.NewConnectorError(domain.KindUnauthorized, "create", 401, nil))
	ctx := context.Background()

	running := f.runningJob(conn, domain.JobFullSync)
	_, err := f.executor.Execute(ctx, running)
	require.True(t, domain.IsUnauthorized(err))
	// The scheduler releases the claim once a job settles.
	require.NoError(t, f.claims.Release(ctx, claimKey(conn.ID), running.ID))

	list, err := f.connSvc.List(ctx, sourceShop)
	require.NoError(t, err)
	require.Len(t, list.Connections, 1)
	assert.True(t, list.Connections[0].NeedsReinstall)

	_, err = f.connSvc.Resume(ctx, sourceShop, conn.ID)
	assert.ErrorIs(t, err, domain.ErrNeedsReinstall)
	_, err = f.scheduler.Enqueue(ctx, sourceShop, conn.ID, domain.JobFullSync)
	assert.ErrorIs(t, err, domain.ErrConnectionDisabled)

	state := f.begin(sourceShop)
	_, err = f.svc.CompleteAuthorization(ctx, callback(sourceShop, state))
	require.NoError(t, err)

	list, err = f.connSvc.List(ctx, sourceShop)
	require.NoError(t, err)
	assert.False(t, list.Connections[0].NeedsReinstall)
	_, err = f.scheduler.Enqueue(ctx, sourceShop, conn.ID, domain.JobFullSync)
	assert.NoError(t, err)
}

func TestRejectedSourceCredentialMarksInstallation(t *testing.T) {
	f := newInstallFixture(t)
	conn := f.connection(domain.SyncRules{})
	f.source.fail("list", "", domain.NewConnectorError(domain.KindUnauthorized, "list", 401, nil))
	ctx := context.Background()

	running := f.runningJob(conn, domain.JobFullSync)
	job, err := f.executor.Execute(ctx, running)
	require.True(t, domain.IsUnauthorized(err))
	assert.Equal(t, domain.JobFailed, job.State)
	require.NoError(t, f.claims.Release(ctx, claimKey(conn.ID), running.ID))

	status, err := f.svc.GetInstallationStatus(ctx, sourceShop)
	require.NoError(t, err)
	assert.True(t, status.NeedsReinstall)

	_, err = f.connSvc.Resume(ctx, sourceShop, conn.ID)
	assert.ErrorIs(t, err, domain.ErrNeedsReinstall)

	state := f.begin(sourceShop)
	_, err = f.svc.CompleteAuthorization(ctx, callback(sourceShop, state))
	require.NoError(t, err)
	_, err = f.scheduler.Enqueue(ctx, sourceShop, conn.ID, domain.JobFullSync)
	assert.NoError(t, err)
}
