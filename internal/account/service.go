// Package account manages users: registration and login, subscription tier
// changes with their payment records, PREMIUM adherent sub-accounts, push
// token registration and the device cap that applies to NORMAL accounts.
package account

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/homewatch/internal/authz"
	"github.com/iliyamo/homewatch/internal/cascade"
	"github.com/iliyamo/homewatch/internal/model"
	"github.com/iliyamo/homewatch/internal/repository"
	"github.com/iliyamo/homewatch/internal/utils"
)

// Identity is what an external identity provider vouches for.
type Identity struct {
	Email      string
	GivenName  string
	FamilyName string
}

// Verifier validates a third-party identity token.
type Verifier interface {
	Verify(ctx context.Context, idToken string) (*Identity, error)
}

// Options are the account limits and hashing cost.
type Options struct {
	BcryptCost       int
	MaxAdherents     int
	MaxDevicesNormal int
}

// Service implements the account operations.
type Service struct {
	store    repository.Store
	guard    *authz.Guard
	verifier Verifier
	opts     Options
	log      *zap.Logger
}

// New creates a Service.  verifier may be nil, which disables external
// login.
func New(store repository.Store, guard *authz.Guard, verifier Verifier, opts Options, log *zap.Logger) *Service {
	return &Service{store: store, guard: guard, verifier: verifier, opts: opts, log: log}
}

// Registration is the input for Register and AddAdherent.
type Registration struct {
	Nombre    string
	Apellido  string
	Email     string
	Password  string
	PushToken string
}

func (r *Registration) normalize() error {
	r.Nombre = strings.TrimSpace(r.Nombre)
	r.Apellido = strings.TrimSpace(r.Apellido)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	if r.Nombre == "" || r.Email == "" || r.Password == "" {
		return fmt.Errorf("nombre, email and clave are required: %w", repository.ErrInvalid)
	}
	if addr, err := mail.ParseAddress(r.Email); err != nil || addr.Address != r.Email {
		return fmt.Errorf("email %q: %w", r.Email, repository.ErrInvalid)
	}
	return nil
}

func (s *Service) newUser(in Registration, tier model.Tier, premiumRef *string) (*model.User, error) {
	hash, err := utils.HashPassword(in.Password, s.opts.BcryptCost)
	if err != nil {
		return nil, err
	}
	u := &model.User{
		ID:           uuid.NewString(),
		Nombre:       in.Nombre,
		Apellido:     in.Apellido,
		Email:        in.Email,
		PasswordHash: hash,
		Tier:         tier,
		PremiumRef:   premiumRef,
	}
	if in.PushToken != "" {
		u.PushTokens = []string{in.PushToken}
	}
	return u, nil
}

// Register creates a NORMAL account.  A taken email is ErrConflict.
func (s *Service) Register(ctx context.Context, in Registration) (*model.User, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	u, err := s.newUser(in, model.TierNormal, nil)
	if err != nil {
		return nil, err
	}
	if err := s.store.Users().Create(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info("user registered", zap.String("user_id", u.ID))
	return u, nil
}

// Login checks email and password.  Unknown emails and wrong passwords are
// both ErrUnauthenticated.  A non-empty pushToken is registered.
func (s *Service) Login(ctx context.Context, email, password, pushToken string) (*model.User, error) {
	u, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("unknown email: %w", repository.ErrUnauthenticated)
		}
		return nil, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return nil, fmt.Errorf("wrong password: %w", repository.ErrUnauthenticated)
	}
	if err := s.registerToken(ctx, u, pushToken); err != nil {
		return nil, err
	}
	return u, nil
}

// LoginExternal verifies idToken with the identity provider and returns the
// matching account, creating it with an unusable password on first sight.
func (s *Service) LoginExternal(ctx context.Context, idToken, pushToken string) (*model.User, error) {
	if s.verifier == nil {
		return nil, fmt.Errorf("external login not configured: %w", repository.ErrGatewayFailure)
	}
	if idToken == "" {
		return nil, fmt.Errorf("idToken is required: %w", repository.ErrInvalid)
	}
	id, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}

	u, err := s.store.Users().GetByEmail(ctx, id.Email)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		secret, err := utils.RandomSecret(32)
		if err != nil {
			return nil, err
		}
		nombre := id.GivenName
		if nombre == "" {
			nombre = strings.Split(id.Email, "@")[0]
		}
		u, err = s.newUser(Registration{
			Nombre: nombre, Apellido: id.FamilyName, Email: strings.ToLower(id.Email), Password: secret,
		}, model.TierNormal, nil)
		if err != nil {
			return nil, err
		}
		if err := s.store.Users().Create(ctx, u); err != nil {
			return nil, err
		}
		s.log.Info("user created from external identity", zap.String("user_id", u.ID))
	default:
		return nil, err
	}
	if err := s.registerToken(ctx, u, pushToken); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) registerToken(ctx context.Context, u *model.User, token string) error {
	if token == "" {
		return nil
	}
	if err := s.store.Users().AddPushToken(ctx, u.ID, token); err != nil {
		return err
	}
	for _, t := range u.PushTokens {
		if t == token {
			return nil
		}
	}
	u.PushTokens = append(u.PushTokens, token)
	return nil
}

// Profile returns the acting user with adherent and payment ids filled in.
func (s *Service) Profile(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.guard.Authenticate(ctx, userID)
	if err != nil {
		return nil, err
	}
	adherents, err := s.store.Users().ListAdherents(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	payments, err := s.store.Payments().ListByUser(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Adherents = make([]string, 0, len(adherents))
	for _, a := range adherents {
		u.Adherents = append(u.Adherents, a.ID)
	}
	u.Payments = make([]string, 0, len(payments))
	for _, p := range payments {
		u.Payments = append(u.Payments, p.ID)
	}
	if u.PushTokens == nil {
		u.PushTokens = []string{}
	}
	return u, nil
}

// Subscription describes a PREMIUM purchase.
type Subscription struct {
	Meses          int
	Monto          float64
	SubscriptionID string
}

// SetPremium upgrades userID and records an ACTIVE payment in the same
// transaction.  Re-setting PREMIUM is a no-op; adherents cannot change
// tier.
func (s *Service) SetPremium(ctx context.Context, userID string, sub Subscription) (*model.User, error) {
	u, err := s.guard.Authenticate(ctx, userID)
	if err != nil {
		return nil, err
	}
	switch u.Tier {
	case model.TierPremium:
		return s.Profile(ctx, u.ID)
	case model.TierAdherent:
		return nil, fmt.Errorf("adherent accounts follow their premium: %w", repository.ErrConflict)
	}
	if sub.Meses <= 0 {
		sub.Meses = 1
	}
	if sub.Monto < 0 {
		return nil, fmt.Errorf("monto must not be negative: %w", repository.ErrInvalid)
	}

	now := time.Now().UTC()
	next := now.AddDate(0, sub.Meses, 0)
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.Users().UpdateTier(ctx, u.ID, model.TierPremium, nil); err != nil {
			return err
		}
		return tx.Payments().Create(ctx, &model.Payment{
			ID:              uuid.NewString(),
			UserID:          u.ID,
			SubscriptionID:  sub.SubscriptionID,
			Status:          model.PaymentActive,
			Amount:          sub.Monto,
			PaidAt:          now,
			NextPaymentDate: &next,
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("user upgraded", zap.String("user_id", u.ID), zap.Int("meses", sub.Meses))
	return s.Profile(ctx, u.ID)
}

// SetNormal cancels a PREMIUM subscription.  Its adherents become NORMAL
// accounts in the same transaction so none is left without a premium.
func (s *Service) SetNormal(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.guard.Authenticate(ctx, userID)
	if err != nil {
		return nil, err
	}
	switch u.Tier {
	case model.TierNormal:
		return s.Profile(ctx, u.ID)
	case model.TierAdherent:
		return nil, fmt.Errorf("adherent accounts follow their premium: %w", repository.ErrConflict)
	}
	var released int
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		adherents, err := tx.Users().ListAdherents(ctx, u.ID)
		if err != nil {
			return err
		}
		for _, a := range adherents {
			if err := tx.Users().UpdateTier(ctx, a.ID, model.TierNormal, nil); err != nil {
				return err
			}
		}
		released = len(adherents)
		return tx.Users().UpdateTier(ctx, u.ID, model.TierNormal, nil)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("user downgraded", zap.String("user_id", u.ID), zap.Int("adherents_released", released))
	return s.Profile(ctx, u.ID)
}

func (s *Service) requirePremium(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.guard.Authenticate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Tier != model.TierPremium {
		return nil, fmt.Errorf("only premium accounts manage adherents: %w", repository.ErrForbidden)
	}
	return u, nil
}

// Adherents lists the adherent accounts of a PREMIUM user.
func (s *Service) Adherents(ctx context.Context, userID string) ([]*model.User, error) {
	u, err := s.requirePremium(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.store.Users().ListAdherents(ctx, u.ID)
}

// AddAdherent creates an ADHERENTE account linked to userID.  Reaching
// MaxAdherents is ErrLimitExceeded.
func (s *Service) AddAdherent(ctx context.Context, userID string, in Registration) (*model.User, error) {
	premium, err := s.requirePremium(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	adherent, err := s.newUser(in, model.TierAdherent, &premium.ID)
	if err != nil {
		return nil, err
	}
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		n, err := tx.Users().CountAdherents(ctx, premium.ID)
		if err != nil {
			return err
		}
		if n >= s.opts.MaxAdherents {
			return fmt.Errorf("%d of %d adherents used: %w", n, s.opts.MaxAdherents, repository.ErrLimitExceeded)
		}
		return tx.Users().Create(ctx, adherent)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("adherent added", zap.String("user_id", premium.ID), zap.String("adherent_id", adherent.ID))
	return adherent, nil
}

// RemoveAdherent deletes an adherent account of userID along with the
// regions, notifications and payments it owns, in one transaction.
func (s *Service) RemoveAdherent(ctx context.Context, userID, adherentID string) error {
	premium, err := s.requirePremium(ctx, userID)
	if err != nil {
		return err
	}
	a, err := s.store.Users().GetByID(ctx, adherentID)
	if err != nil {
		return err
	}
	if a.PremiumRef == nil || *a.PremiumRef != premium.ID {
		return fmt.Errorf("adherent %s: %w", adherentID, repository.ErrNotFound)
	}
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		return cascade.PurgeUser(ctx, tx, a.ID)
	})
	if err != nil {
		return err
	}
	s.log.Info("adherent removed", zap.String("user_id", premium.ID), zap.String("adherent_id", a.ID))
	return nil
}

// Payments lists the payments of the acting user, newest first.
func (s *Service) Payments(ctx context.Context, userID string) ([]*model.Payment, error) {
	u, err := s.guard.Authenticate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.store.Payments().ListByUser(ctx, u.ID)
}

// DeviceAllowance is the device cap status of an account.  Max is zero
// for accounts without a cap.
type DeviceAllowance struct {
	PuedeAgregar bool `json:"puedeAgregar"`
	Cantidad     int  `json:"cantidad"`
	Max          int  `json:"max,omitempty"`
}

// CanAddDevice reports whether u may add one more device.  Only NORMAL
// accounts are capped.
func (s *Service) CanAddDevice(ctx context.Context, u *model.User) (bool, error) {
	a, err := s.allowance(ctx, u)
	if err != nil {
		return false, err
	}
	return a.PuedeAgregar, nil
}

// Allowance reports the device cap status of the acting user.
func (s *Service) Allowance(ctx context.Context, userID string) (*DeviceAllowance, error) {
	u, err := s.guard.Authenticate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.allowance(ctx, u)
}

func (s *Service) allowance(ctx context.Context, u *model.User) (*DeviceAllowance, error) {
	n, err := s.store.Devices().CountByUser(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if u.Tier != model.TierNormal {
		return &DeviceAllowance{PuedeAgregar: true, Cantidad: n}, nil
	}
	return &DeviceAllowance{PuedeAgregar: n < s.opts.MaxDevicesNormal, Cantidad: n, Max: s.opts.MaxDevicesNormal}, nil
}

// AddPushToken registers an Expo push token for the acting user.
func (s *Service) AddPushToken(ctx context.Context, userID, token string) error {
	u, err := s.guard.Authenticate(ctx, userID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("token is required: %w", repository.ErrInvalid)
	}
	return s.store.Users().AddPushToken(ctx, u.ID, strings.TrimSpace(token))
}

// RemovePushToken unregisters a push token of the acting user.
func (s *Service) RemovePushToken(ctx context.Context, userID, token string) error {
	u, err := s.guard.Authenticate(ctx, userID)
	if err != nil {
		return err
	}
	return s.store.Users().RemovePushToken(ctx, u.ID, strings.TrimSpace(token))
}
