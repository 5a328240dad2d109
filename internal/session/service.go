package session

import (
	"context"
	"fmt"
	"log"

	"cotrain/pkg/interfaces"
	"cotrain/pkg/types"
)

// Service creates and joins sessions, producing the identity that the rest of
// the workflow runs under.
type Service struct {
	backend  interfaces.Backend
	identity interfaces.IdentityStore
}

// NewService creates a session service.
func NewService(backend interfaces.Backend, identity interfaces.IdentityStore) *Service {
	return &Service{
		backend:  backend,
		identity: identity,
	}
}

// Create registers a new session as lead and adopts the resulting identity.
// OrgName and Label travel with the lead's identity into the upload stage.
func (s *Service) Create(ctx context.Context, participantCount int, orgName, label string) (*types.SessionIdentity, error) {
	if participantCount < types.MinParticipants || participantCount > types.MaxParticipants {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidParticipantCount,
			participantCount, types.MinParticipants, types.MaxParticipants)
	}

	userID, err := s.identity.UserID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain profile user id: %w", err)
	}

	sessionID, err := s.backend.CreateSession(ctx, participantCount, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	identity := &types.SessionIdentity{
		UserType:         types.UserTypeLead,
		UserID:           userID,
		SessionID:        sessionID,
		ParticipantCount: participantCount,
		OrgName:          orgName,
		Label:            label,
	}

	adopted, err := s.identity.Resolve(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to adopt identity: %w", err)
	}

	log.Printf("Session: created %s for %d participants", sessionID, participantCount)
	return adopted, nil
}

// Join validates an existing session and adopts a participant identity.
// A full session is rejected before any identity is persisted.
func (s *Service) Join(ctx context.Context, sessionID string) (*types.SessionIdentity, error) {
	if !types.IsValidSessionID(sessionID) {
		return nil, types.ErrInvalidSessionID
	}

	info, err := s.backend.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect session: %w", err)
	}
	if info.Full() {
		return nil, fmt.Errorf("%w: %d/%d seats taken", ErrSessionFull, info.JoinedCount, info.ParticipantCount)
	}

	userID, err := s.identity.UserID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain profile user id: %w", err)
	}

	identity := &types.SessionIdentity{
		UserType:         types.UserTypeParticipant,
		UserID:           userID,
		SessionID:        sessionID,
		ParticipantCount: info.ParticipantCount,
	}

	adopted, err := s.identity.Resolve(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to adopt identity: %w", err)
	}

	log.Printf("Session: joined %s (%d/%d participants)", sessionID, info.JoinedCount+1, info.ParticipantCount)
	return adopted, nil
}

// Leave clears the adopted identity, returning the profile to the landing stage.
func (s *Service) Leave(ctx context.Context) error {
	return s.identity.Clear(ctx)
}
