package account

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/homewatch/internal/authz"
	"github.com/iliyamo/homewatch/internal/model"
	"github.com/iliyamo/homewatch/internal/repository"
)

type stubVerifier struct {
	id  *Identity
	err error
}

func (v stubVerifier) Verify(context.Context, string) (*Identity, error) { return v.id, v.err }

func newService(t *testing.T, v Verifier) (*Service, *repository.MemoryStore) {
	t.Helper()
	s := repository.NewMemoryStore()
	return New(s, authz.NewGuard(s), v, Options{BcryptCost: 4, MaxAdherents: 2, MaxDevicesNormal: 3}, zap.NewNop()), s
}

func register(t *testing.T, svc *Service, email string) *model.User {
	t.Helper()
	u, err := svc.Register(context.Background(), Registration{Nombre: "Ana", Apellido: "Paz", Email: email, Password: "secret"})
	require.NoError(t, err)
	return u
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	u := register(t, svc, "Ana@Example.com")
	assert.Equal(t, model.TierNormal, u.Tier)
	assert.Equal(t, "ana@example.com", u.Email)
	assert.NotEqual(t, "secret", u.PasswordHash)

	_, err := svc.Register(ctx, Registration{Nombre: "Otra", Email: "ana@example.com", Password: "x"})
	assert.ErrorIs(t, err, repository.ErrConflict)

	got, err := svc.Login(ctx, "ana@example.com", "secret", "ExponentPushToken[abc]")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Contains(t, got.PushTokens, "ExponentPushToken[abc]")

	_, err = svc.Login(ctx, "ana@example.com", "wrong", "")
	assert.ErrorIs(t, err, repository.ErrUnauthenticated)
	_, err = svc.Login(ctx, "nobody@example.com", "secret", "")
	assert.ErrorIs(t, err, repository.ErrUnauthenticated)
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newService(t, nil)

	for _, in := range []Registration{
		{Email: "a@example.com", Password: "x"},
		{Nombre: "A", Email: "not-an-email", Password: "x"},
		{Nombre: "A", Email: "a@example.com"},
	} {
		_, err := svc.Register(context.Background(), in)
		assert.ErrorIs(t, err, repository.ErrInvalid)
	}
}

func TestLoginExternal_CreatesOnFirstSight(t *testing.T) {
	svc, store := newService(t, stubVerifier{id: &Identity{Email: "Luz@Example.com", GivenName: "Luz", FamilyName: "Sol"}})
	ctx := context.Background()

	first, err := svc.LoginExternal(ctx, "id-token", "")
	require.NoError(t, err)
	assert.Equal(t, "Luz", first.Nombre)
	assert.Equal(t, "luz@example.com", first.Email)

	second, err := svc.LoginExternal(ctx, "id-token", "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	stored, err := store.Users().GetByEmail(ctx, "luz@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, stored.PasswordHash)
}

func TestLoginExternal_VerifierFailure(t *testing.T) {
	svc, _ := newService(t, stubVerifier{err: fmt.Errorf("tokeninfo: %w", repository.ErrUnauthenticated)})

	_, err := svc.LoginExternal(context.Background(), "bad", "")

	assert.ErrorIs(t, err, repository.ErrUnauthenticated)
}

func TestSetPremium_RecordsPaymentOnce(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()
	u := register(t, svc, "ana@example.com")

	p, err := svc.SetPremium(ctx, u.ID, Subscription{Meses: 3, Monto: 4500})
	require.NoError(t, err)
	assert.Equal(t, model.TierPremium, p.Tier)
	assert.Len(t, p.Payments, 1)

	again, err := svc.SetPremium(ctx, u.ID, Subscription{Meses: 3, Monto: 4500})
	require.NoError(t, err)
	assert.Len(t, again.Payments, 1)

	payments, err := svc.Payments(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, model.PaymentActive, payments[0].Status)
	assert.Equal(t, "ARS", payments[0].Currency)
	require.NotNil(t, payments[0].NextPaymentDate)
	assert.Equal(t, payments[0].PaidAt.AddDate(0, 3, 0), *payments[0].NextPaymentDate)
}

func TestAdherents_LimitExceededAtMax(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()
	u := register(t, svc, "ana@example.com")
	_, err := svc.SetPremium(ctx, u.ID, Subscription{Monto: 1})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		a, err := svc.AddAdherent(ctx, u.ID, Registration{Nombre: "Hijo", Email: fmt.Sprintf("h%d@example.com", i), Password: "x"})
		require.NoError(t, err)
		assert.Equal(t, model.TierAdherent, a.Tier)
		require.NotNil(t, a.PremiumRef)
		assert.Equal(t, u.ID, *a.PremiumRef)
	}

	_, err = svc.AddAdherent(ctx, u.ID, Registration{Nombre: "Hijo", Email: "h9@example.com", Password: "x"})
	assert.ErrorIs(t, err, repository.ErrLimitExceeded)

	list, err := svc.Adherents(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestAdherents_OnlyPremium(t *testing.T) {
	svc, _ := newService(t, nil)
	u := register(t, svc, "ana@example.com")

	_, err := svc.AddAdherent(context.Background(), u.ID, Registration{Nombre: "Hijo", Email: "h@example.com", Password: "x"})

	assert.ErrorIs(t, err, repository.ErrForbidden)
}

func TestRemoveAdherent_UpdatesPremiumList(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()
	u := register(t, svc, "ana@example.com")
	other := register(t, svc, "otro@example.com")
	for _, id := range []string{u.ID, other.ID} {
		_, err := svc.SetPremium(ctx, id, Subscription{Monto: 1})
		require.NoError(t, err)
	}
	a, err := svc.AddAdherent(ctx, u.ID, Registration{Nombre: "Hijo", Email: "h@example.com", Password: "x"})
	require.NoError(t, err)

	err = svc.RemoveAdherent(ctx, other.ID, a.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, svc.RemoveAdherent(ctx, u.ID, a.ID))
	p, err := svc.Profile(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, p.Adherents)
}

func TestRemoveAdherent_PurgesOwnedData(t *testing.T) {
	svc, store := newService(t, nil)
	ctx := context.Background()
	u := register(t, svc, "ana@example.com")
	_, err := svc.SetPremium(ctx, u.ID, Subscription{Monto: 1})
	require.NoError(t, err)
	a, err := svc.AddAdherent(ctx, u.ID, Registration{Nombre: "Hijo", Email: "h@example.com", Password: "x"})
	require.NoError(t, err)

	cam := "c1"
	require.NoError(t, store.Regions().Create(ctx, &model.Region{ID: "r-own", UserID: u.ID, Nombre: "Casa"}))
	require.NoError(t, store.Regions().Create(ctx, &model.Region{ID: "r-adh", UserID: a.ID, Nombre: "Depto"}))
	require.NoError(t, store.Devices().Create(ctx, &model.Device{ID: "d1", RegionID: "r-adh", MACAddress: "AA:01", CamaraID: &cam}))
	require.NoError(t, store.Cameras().Create(ctx, &model.Camera{ID: cam, DeviceID: "d1"}))
	require.NoError(t, store.Notifications().Create(ctx, &model.Notification{ID: "n1", RegionID: "r-adh", UserID: a.ID}))
	require.NoError(t, store.Payments().Create(ctx, &model.Payment{ID: "p1", UserID: a.ID}))

	require.NoError(t, svc.RemoveAdherent(ctx, u.ID, a.ID))

	_, err = store.Users().GetByID(ctx, a.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = store.Regions().GetByID(ctx, "r-adh")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = store.Devices().GetByID(ctx, "d1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = store.Cameras().GetByID(ctx, cam)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	matched, err := store.Devices().ListByMACs(ctx, []string{"AA:01"})
	require.NoError(t, err)
	assert.Empty(t, matched)
	ns, err := store.Notifications().ListByUser(ctx, a.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, ns)
	pays, err := store.Payments().ListByUser(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, pays)

	_, err = store.Regions().GetByID(ctx, "r-own")
	assert.NoError(t, err)
	own, err := store.Payments().ListByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, own, 1)
}

func TestSetNormal_ReleasesAdherents(t *testing.T) {
	svc, store := newService(t, nil)
	ctx := context.Background()
	u := register(t, svc, "ana@example.com")
	_, err := svc.SetPremium(ctx, u.ID, Subscription{Monto: 1})
	require.NoError(t, err)
	a, err := svc.AddAdherent(ctx, u.ID, Registration{Nombre: "Hijo", Email: "h@example.com", Password: "x"})
	require.NoError(t, err)

	_, err = svc.SetNormal(ctx, a.ID)
	assert.ErrorIs(t, err, repository.ErrConflict)

	p, err := svc.SetNormal(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TierNormal, p.Tier)
	assert.Empty(t, p.Adherents)

	released, err := store.Users().GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TierNormal, released.Tier)
	assert.Nil(t, released.PremiumRef)
}

func TestAllowance_BoundaryForNormal(t *testing.T) {
	svc, store := newService(t, nil)
	ctx := context.Background()
	u := register(t, svc, "ana@example.com")
	require.NoError(t, store.Regions().Create(ctx, &model.Region{ID: "r1", UserID: u.ID}))

	for i := 0; i < 3; i++ {
		a, err := svc.Allowance(ctx, u.ID)
		require.NoError(t, err)
		assert.True(t, a.PuedeAgregar, "below the cap with %d devices", i)
		require.NoError(t, store.Devices().Create(ctx, &model.Device{ID: fmt.Sprintf("d%d", i), RegionID: "r1"}))
	}

	a, err := svc.Allowance(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, a.PuedeAgregar)
	assert.Equal(t, 3, a.Cantidad)
	assert.Equal(t, 3, a.Max)

	_, err = svc.SetPremium(ctx, u.ID, Subscription{Monto: 1})
	require.NoError(t, err)
	a, err = svc.Allowance(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, a.PuedeAgregar)
}

func TestPushTokens(t *testing.T) {
	svc, store := newService(t, nil)
	ctx := context.Background()
	u := register(t, svc, "ana@example.com")

	require.NoError(t, svc.AddPushToken(ctx, u.ID, "ExponentPushToken[a]"))
	require.NoError(t, svc.AddPushToken(ctx, u.ID, "ExponentPushToken[a]"))
	tokens, err := store.Users().PushTokens(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"ExponentPushToken[a]"}, tokens)

	require.NoError(t, svc.RemovePushToken(ctx, u.ID, "ExponentPushToken[a]"))
	tokens, err = store.Users().PushTokens(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, tokens)

	err = svc.AddPushToken(ctx, "", "x")
	assert.True(t, errors.Is(err, repository.ErrUnauthenticated))
}
