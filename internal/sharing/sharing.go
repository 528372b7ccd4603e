// Package sharing issues and resolves public share links for consultations.
// The token is the secret: anyone holding a live token can read the shared
// consultation without bearer auth.
package sharing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/twinlabs/twind/internal/storage"
)

// DefaultExpiry is how long a share link stays valid unless the owner asks
// for a shorter window.
const DefaultExpiry = 30 * 24 * time.Hour

// ShareStore is the slice of storage the service needs.
type ShareStore interface {
	GetConsultation(owner, id string) (storage.Consultation, error)
	MarkConsultationShared(id string, shared bool) error
	SaveShare(sc storage.SharedConsultation) error
	GetShareByToken(token string) (storage.SharedConsultation, error)
	RevokeShare(owner, token string) error
	CountActiveShares(consultationID string) (int, error)
}

// Service owns the share-link lifecycle.
type Service struct {
	store ShareStore
	now   func() time.Time
}

func NewService(store ShareStore) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Link is a freshly issued share.
type Link struct {
	Token     string    `json:"share_token"`
	Path      string    `json:"path"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateLink issues a share token for the owner's consultation. expiresDays
// of 0 means the 30-day default. Ownership is enforced: sharing someone
// else's consultation returns storage.ErrNotFound.
func (s *Service) CreateLink(owner, consultationID string, emails []string, expiresDays int) (Link, error) {
	if _, err := s.store.GetConsultation(owner, consultationID); err != nil {
		return Link{}, err
	}

	expiry := DefaultExpiry
	if expiresDays > 0 {
		expiry = time.Duration(expiresDays) * 24 * time.Hour
	}

	if emails == nil {
		emails = []string{}
	}
	sharedWith, err := json.Marshal(emails)
	if err != nil {
		return Link{}, fmt.Errorf("encoding recipients: %w", err)
	}

	now := s.now()
	sc := storage.SharedConsultation{
		ShareToken:     uuid.NewString(),
		ConsultationID: consultationID,
		Owner:          owner,
		SharedWith:     string(sharedWith),
		ExpiresAt:      now.Add(expiry).Truncate(time.Second),
		IsActive:       true,
		CreatedAt:      now.Truncate(time.Second),
	}
	if err := s.store.SaveShare(sc); err != nil {
		return Link{}, fmt.Errorf("saving share: %w", err)
	}
	if err := s.store.MarkConsultationShared(consultationID, true); err != nil {
		return Link{}, fmt.Errorf("flagging consultation: %w", err)
	}

	return Link{
		Token:     sc.ShareToken,
		Path:      "/shared/" + sc.ShareToken,
		ExpiresAt: sc.ExpiresAt,
	}, nil
}

// Resolve returns the consultation behind a live token. Unknown, revoked,
// and expired tokens all surface as storage.ErrNotFound so callers cannot
// distinguish them.
func (s *Service) Resolve(token string) (storage.Consultation, error) {
	sc, err := s.store.GetShareByToken(token)
	if err != nil {
		return storage.Consultation{}, err
	}
	if !sc.IsActive || s.now().After(sc.ExpiresAt) {
		return storage.Consultation{}, storage.ErrNotFound
	}
	return s.store.GetConsultation(sc.Owner, sc.ConsultationID)
}

// Revoke deactivates the owner's share link, clearing the consultation's
// shared flag once no active links remain.
func (s *Service) Revoke(owner, token string) error {
	sc, err := s.store.GetShareByToken(token)
	if err != nil {
		return err
	}
	if err := s.store.RevokeShare(owner, token); err != nil {
		return err
	}

	n, err := s.store.CountActiveShares(sc.ConsultationID)
	if err != nil {
		return fmt.Errorf("counting remaining shares: %w", err)
	}
	if n == 0 {
		if err := s.store.MarkConsultationShared(sc.ConsultationID, false); err != nil {
			return fmt.Errorf("clearing shared flag: %w", err)
		}
	}
	return nil
}
