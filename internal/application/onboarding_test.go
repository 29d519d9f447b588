package application

import (
	"context"
	"net/url"
	"testing"
	"time"

	"archie-core-sync-layer/internal/domain"
	"archie-core-sync-layer/internal/infrastructure/repository/memory"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateRoundTrip(t *testing.T) {
	h := newHarness(t)
	conn := h.connection(domain.SyncRules{SyncPrice: true, SyncTags: true})
	ctx := context.Background()
	svc := NewTemplateService(memory.NewTemplateRepository(), h.connections, h.connSvc, zerolog.Nop())

	tmpl, err := svc.CreateFromConnection(ctx, sourceShop, conn.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Retail", tmpl.Name)
	assert.Equal(t, conn.Rules, tmpl.Rules)

	list, err := svc.List(ctx, sourceShop)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.Instantiate(ctx, sourceShop, tmpl.ID, InstantiateTemplateInput{Name: "Outlet"})
	assert.ErrorIs(t, err, domain.ErrValidation, "credentials are required again")

	created, err := svc.Instantiate(ctx, sourceShop, tmpl.ID, InstantiateTemplateInput{
		Name: "Outlet",
		Destination: domain.DestinationCredentials{
			BaseURL:        "https://outlet.example.com",
			ConsumerKey:    "ck2",
			ConsumerSecret: "cs2",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Outlet", created.Name)
	assert.Equal(t, conn.Rules, created.Rules)

	assert.ErrorIs(t, svc.Delete(ctx, "other.myshopify.com", tmpl.ID), domain.ErrNotFound)
	require.NoError(t, svc.Delete(ctx, sourceShop, tmpl.ID))
	list, err = svc.List(ctx, sourceShop)
	require.NoError(t, err)
	assert.Empty(t, list)
}

type inviteFixture struct {
	*harness
	invites *memory.InviteRepository
	svc     *InviteService
	now     time.Time
}

func newInviteFixture(t *testing.T) *inviteFixture {
	h := newHarness(t)
	h.install(sourceShop)
	f := &inviteFixture{harness: h, invites: memory.NewInviteRepository(), now: time.Now()}
	clock := func() time.Time { return f.now }
	f.svc = NewInviteService(f.invites, fakeSigner{now: clock}, h.connSvc, fakeLocations{id: "loc-9"}, h.activity, zerolog.Nop(), "https://app.example.com/", time.Hour)
	f.svc.now = clock
	return f
}

func TestCreateInviteBuildsInstallURL(t *testing.T) {
	f := newInviteFixture(t)

	_, err := f.svc.Create(context.Background(), CreateInviteInput{InstallationShop: sourceShop, DestinationShop: sourceShop})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.svc.Create(context.Background(), CreateInviteInput{InstallationShop: sourceShop, DestinationShop: "not a shop"})
	assert.ErrorIs(t, err, domain.ErrInvalidShopDomain)

	inv, err := f.svc.Create(context.Background(), CreateInviteInput{InstallationShop: sourceShop, DestinationShop: destShop})
	require.NoError(t, err)
	assert.Equal(t, domain.InvitePending, inv.Status)

	u, err := url.Parse(inv.InstallURL)
	require.NoError(t, err)
	assert.Equal(t, "app.example.com", u.Host)
	assert.Equal(t, "/auth/shopify", u.Path)
	assert.Equal(t, destShop, u.Query().Get("shop"))
	assert.NotEmpty(t, u.Query().Get("invite"))
}

func TestAcceptInviteCreatesConnection(t *testing.T) {
	f := newInviteFixture(t)
	ctx := context.Background()
	inv, err := f.svc.Create(ctx, CreateInviteInput{InstallationShop: sourceShop, Name: "Retail", DestinationShop: destShop})
	require.NoError(t, err)
	token, _ := url.Parse(inv.InstallURL)

	assert.ErrorIs(t, f.svc.AcceptInvite(ctx, token.Query().Get("invite"), "other.myshopify.com", "shpat_x"), domain.ErrInviteInvalid)

	require.NoError(t, f.svc.AcceptInvite(ctx, token.Query().Get("invite"), destShop, "shpat_dest"))

	stored, err := f.invites.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InviteAccepted, stored.Status)
	require.NotEmpty(t, stored.ConnectionID)

	conn, err := f.connections.Get(ctx, stored.ConnectionID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlatformShopify, conn.Platform)
	assert.Equal(t, destShop, conn.Destination.ShopDomain)
	assert.Equal(t, "loc-9", conn.LocationID)
	assert.Equal(t, DefaultInviteRules, conn.Rules)

	assert.ErrorIs(t, f.svc.AcceptInvite(ctx, token.Query().Get("invite"), destShop, "shpat_dest"), domain.ErrInviteInvalid, "invites are single-use")
}

func TestListInvitesExpiresPending(t *testing.T) {
	f := newInviteFixture(t)
	ctx := context.Background()
	inv, err := f.svc.Create(ctx, CreateInviteInput{InstallationShop: sourceShop, DestinationShop: destShop})
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Hour)
	list, err := f.svc.List(ctx, sourceShop)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.InviteExpired, list[0].Status)

	stored, err := f.invites.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InviteExpired, stored.Status)
}
