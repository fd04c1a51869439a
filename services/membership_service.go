//go:generate go run go.uber.org/mock/mockgen -source=membership_service.go -destination=../mocks/mock_membership_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"group-chat/cooldown"
	"group-chat/domain"
	"group-chat/domain/event"
	"group-chat/errors"
	"group-chat/repositories"
	"group-chat/runtime"
)

type IMembershipService interface {
	CreateGroup(ctx context.Context, cmd domain.CreateGroupCommand) (*domain.Group, error)
	JoinGroup(ctx context.Context, groupID uuid.UUID, userID string) (JoinResult, error)
	LeaveGroup(ctx context.Context, groupID uuid.UUID, userID string) error
	DeleteGroup(ctx context.Context, groupID uuid.UUID, userID string) error
	TransferOwnership(ctx context.Context, groupID uuid.UUID, userID, newOwnerID string) error
	BanishUser(ctx context.Context, groupID uuid.UUID, userID, targetUserID string) error
	ApproveJoinRequest(ctx context.Context, groupID uuid.UUID, userID string, requestID uuid.UUID) error
	DeclineJoinRequest(ctx context.Context, groupID uuid.UUID, userID string, requestID uuid.UUID) error
	IsMember(groupID uuid.UUID, userID string) (bool, error)
	IsBanned(groupID uuid.UUID, userID string) (bool, error)
	HasPendingRequest(groupID uuid.UUID, userID string) (bool, error)
	Owner(groupID uuid.UUID) (string, error)
}

// JoinResult is the outcome of JoinGroup. Request is set when the group
// is private: the caller only filed a pending join request and is not a
// member yet.
type JoinResult struct {
	Group   *domain.Group
	Request *domain.JoinRequest
}

// MembershipService owns the Group aggregate's lifecycle and membership
// invariants. Every mutator runs under the group's keyed mutex; the
// Group write always happens before the User-side index write, and a
// failed User write is compensated by reverting the Group change so no
// invariant survives a partial failure.
type MembershipService struct {
	log      *slog.Logger
	groups   repositories.IGroupRepository
	users    repositories.IUserRepository
	messages repositories.IMessageRepository
	ledger   cooldown.ILedger
	bus      *runtime.Bus
	locks    *keyedMutex
	now      func() time.Time
}

func NewMembershipService(
	log *slog.Logger,
	groups repositories.IGroupRepository,
	users repositories.IUserRepository,
	messages repositories.IMessageRepository,
	ledger cooldown.ILedger,
	bus *runtime.Bus,
) *MembershipService {
	return &MembershipService{
		log:      log,
		groups:   groups,
		users:    users,
		messages: messages,
		ledger:   ledger,
		bus:      bus,
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
}

func groupLockKey(groupID uuid.UUID) string {
	return "group:" + groupID.String()
}

// CreateGroup creates a group with the owner as sole member.
func (s *MembershipService) CreateGroup(ctx context.Context, cmd domain.CreateGroupCommand) (*domain.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	group := domain.NewGroup(cmd.Name, cmd.Type, cmd.OwnerID, cmd.MaxMembers, s.now().UTC())
	if err := s.groups.Save(group); err != nil {
		return nil, err
	}

	owner, err := s.users.Load(cmd.OwnerID)
	if err == nil {
		owner.AddGroup(group.ID)
		err = s.users.Save(owner)
	}
	if err != nil {
		if cerr := s.groups.Delete(group.ID); cerr != nil {
			s.log.Error("compensation failed, orphan group left behind",
				"group", group.ID, "error", cerr)
		}
		return nil, err
	}

	s.log.Info("group created", "group", group.ID, "owner", cmd.OwnerID, "type", string(cmd.Type))
	s.publishMembership(group.ID, cmd.OwnerID, event.ChangeJoined)
	return group, nil
}

// JoinGroup adds the user to a public group, or files a pending join
// request on a private one. Bans always win; capacity is checked here
// and re-checked at approval time for private groups.
func (s *MembershipService) JoinGroup(ctx context.Context, groupID uuid.UUID, userID string) (JoinResult, error) {
	if err := ctx.Err(); err != nil {
		return JoinResult{}, err
	}
	unlock := s.locks.lock(groupLockKey(groupID))
	defer unlock()

	group, err := s.groups.Load(groupID)
	if err != nil {
		return JoinResult{}, err
	}
	if group.IsMember(userID) {
		return JoinResult{}, fmt.Errorf("%w: user %s in group %s", errors.ErrAlreadyMember, userID, groupID)
	}
	if group.IsBanned(userID) {
		return JoinResult{}, fmt.Errorf("%w: user %s in group %s", errors.ErrBanned, userID, groupID)
	}
	if group.IsFull() {
		return JoinResult{}, fmt.Errorf("%w: group %s", errors.ErrGroupFull, groupID)
	}

	if group.Type == domain.GroupPrivate {
		ok, err := s.ledger.CanRejoin(userID, groupID)
		if err != nil {
			return JoinResult{}, err
		}
		if !ok {
			return JoinResult{}, fmt.Errorf("%w: user %s in group %s", errors.ErrCooldownActive, userID, groupID)
		}
		if group.HasPendingRequest(userID) {
			return JoinResult{}, fmt.Errorf("%w: user %s in group %s", errors.ErrRequestPending, userID, groupID)
		}
		request := group.AppendJoinRequest(userID, s.now().UTC())
		if err := s.groups.Save(group); err != nil {
			return JoinResult{}, err
		}
		s.log.Info("join request filed", "group", groupID, "user", userID, "request", request.ID)
		return JoinResult{Group: group, Request: &request}, nil
	}

	group.AddMember(userID)
	if err := s.groups.Save(group); err != nil {
		return JoinResult{}, err
	}
	if err := s.indexUserJoin(group, userID, nil); err != nil {
		return JoinResult{}, err
	}

	s.log.Info("user joined group", "group", groupID, "user", userID)
	s.publishMembership(groupID, userID, event.ChangeJoined)
	return JoinResult{Group: group}, nil
}

// LeaveGroup removes the user from the group. The owner must transfer
// ownership first. Leaving a private group arms the rejoin cooldown.
func (s *MembershipService) LeaveGroup(ctx context.Context, groupID uuid.UUID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.locks.lock(groupLockKey(groupID))
	defer unlock()

	group, err := s.groups.Load(groupID)
	if err != nil {
		return err
	}
	if !group.IsMember(userID) {
		return fmt.Errorf("%w: user %s in group %s", errors.ErrNotMember, userID, groupID)
	}
	if group.OwnerID == userID {
		return fmt.Errorf("%w: group %s", errors.ErrOwnerCannotLeave, groupID)
	}

	// Armed before the membership writes: a ledger entry for a user who
	// is still a member is harmless, the ledger is only consulted for
	// non-members, so a failure below leaves no invariant violated.
	if group.Type == domain.GroupPrivate {
		if err := s.ledger.RecordLeave(userID, groupID, s.now().UTC()); err != nil {
			return err
		}
	}

	group.RemoveMember(userID)
	if err := s.groups.Save(group); err != nil {
		return err
	}

	user, err := s.users.Load(userID)
	if err == nil {
		user.RemoveGroup(groupID)
		err = s.users.Save(user)
	}
	if err != nil {
		group.AddMember(userID)
		if cerr := s.groups.Save(group); cerr != nil {
			s.log.Error("compensation failed, member missing from group",
				"group", groupID, "user", userID, "error", cerr)
		}
		return err
	}

	s.log.Info("user left group", "group", groupID, "user", userID)
	s.publishMembership(groupID, userID, event.ChangeLeft)
	return nil
}

// DeleteGroup destroys a group the caller owns, provided the owner is
// the last member. All of the group's messages are removed and the
// group reference is stripped from every former member's record.
func (s *MembershipService) DeleteGroup(ctx context.Context, groupID uuid.UUID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.locks.lock(groupLockKey(groupID))
	defer unlock()

	group, err := s.groups.Load(groupID)
	if err != nil {
		return err
	}
	if group.OwnerID != userID {
		return fmt.Errorf("%w: user %s on group %s", errors.ErrNotOwner, userID, groupID)
	}
	if len(group.Members) > 1 {
		return fmt.Errorf("%w: group %s has %d members", errors.ErrGroupHasMembers, groupID, len(group.Members))
	}

	if err := s.messages.DeleteAllInGroup(groupID); err != nil {
		return err
	}
	for _, memberID := range group.Members {
		member, err := s.users.Load(memberID)
		if err != nil {
			return err
		}
		member.RemoveGroup(groupID)
		if err := s.users.Save(member); err != nil {
			return err
		}
	}
	if err := s.groups.Delete(groupID); err != nil {
		return err
	}

	s.log.Info("group deleted", "group", groupID, "owner", userID)
	s.publishMembership(groupID, userID, event.ChangeDeleted)
	return nil
}

// TransferOwnership hands the group to another member; the previous
// owner stays a regular member.
func (s *MembershipService) TransferOwnership(ctx context.Context, groupID uuid.UUID, userID, newOwnerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.locks.lock(groupLockKey(groupID))
	defer unlock()

	group, err := s.groups.Load(groupID)
	if err != nil {
		return err
	}
	if group.OwnerID != userID {
		return fmt.Errorf("%w: user %s on group %s", errors.ErrNotOwner, userID, groupID)
	}
	if !group.IsMember(newOwnerID) {
		return fmt.Errorf("%w: user %s in group %s", errors.ErrNotMember, newOwnerID, groupID)
	}

	group.TransferTo(newOwnerID)
	if err := s.groups.Save(group); err != nil {
		return err
	}

	s.log.Info("ownership transferred", "group", groupID, "from", userID, "to", newOwnerID)
	s.publishMembership(groupID, newOwnerID, event.ChangeOwner)
	return nil
}

// BanishUser removes a member and records a permanent ban on both the
// group and the target's user record. There is no unban operation.
func (s *MembershipService) BanishUser(ctx context.Context, groupID uuid.UUID, userID, targetUserID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.locks.lock(groupLockKey(groupID))
	defer unlock()

	group, err := s.groups.Load(groupID)
	if err != nil {
		return err
	}
	if group.OwnerID != userID {
		return fmt.Errorf("%w: user %s on group %s", errors.ErrNotOwner, userID, groupID)
	}
	if targetUserID == group.OwnerID {
		return fmt.Errorf("%w: group %s", errors.ErrSelfBan, groupID)
	}
	if !group.IsMember(targetUserID) {
		return fmt.Errorf("%w: user %s in group %s", errors.ErrNotMember, targetUserID, groupID)
	}

	at := s.now().UTC()
	group.Ban(targetUserID, userID, at)
	if err := s.groups.Save(group); err != nil {
		return err
	}

	target, err := s.users.Load(targetUserID)
	if err == nil {
		target.RemoveGroup(groupID)
		target.AddBan(groupID, at)
		err = s.users.Save(target)
	}
	if err != nil {
		group.BannedUsers = group.BannedUsers[:len(group.BannedUsers)-1]
		group.AddMember(targetUserID)
		if cerr := s.groups.Save(group); cerr != nil {
			s.log.Error("compensation failed, ban half applied",
				"group", groupID, "user", targetUserID, "error", cerr)
		}
		return err
	}

	s.log.Info("user banished", "group", groupID, "user", targetUserID, "by", userID)
	s.publishMembership(groupID, targetUserID, event.ChangeBanned)
	return nil
}

// ApproveJoinRequest turns a pending request into a membership. Capacity
// is re-evaluated here, not at request time, so a slot filled by another
// approval in the meantime is caught.
func (s *MembershipService) ApproveJoinRequest(ctx context.Context, groupID uuid.UUID, userID string, requestID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.locks.lock(groupLockKey(groupID))
	defer unlock()

	group, request, err := s.loadRequest(groupID, userID, requestID)
	if err != nil {
		return err
	}
	if group.IsFull() {
		return fmt.Errorf("%w: group %s", errors.ErrGroupFull, groupID)
	}
	if group.IsBanned(request.UserID) {
		return fmt.Errorf("%w: user %s in group %s", errors.ErrBanned, request.UserID, groupID)
	}
	if group.IsMember(request.UserID) {
		return fmt.Errorf("%w: user %s in group %s", errors.ErrAlreadyMember, request.UserID, groupID)
	}

	request.Status = domain.RequestApproved
	group.AddMember(request.UserID)
	if err := s.groups.Save(group); err != nil {
		return err
	}
	if err := s.indexUserJoin(group, request.UserID, func() {
		request.Status = domain.RequestPending
	}); err != nil {
		return err
	}

	s.log.Info("join request approved", "group", groupID, "user", request.UserID, "request", requestID)
	s.publishMembership(groupID, request.UserID, event.ChangeApproved)
	return nil
}

// DeclineJoinRequest resolves a pending request without side effects on
// membership.
func (s *MembershipService) DeclineJoinRequest(ctx context.Context, groupID uuid.UUID, userID string, requestID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.locks.lock(groupLockKey(groupID))
	defer unlock()

	group, request, err := s.loadRequest(groupID, userID, requestID)
	if err != nil {
		return err
	}

	request.Status = domain.RequestDeclined
	if err := s.groups.Save(group); err != nil {
		return err
	}

	s.log.Info("join request declined", "group", groupID, "user", request.UserID, "request", requestID)
	return nil
}

// IsMember reports whether the user currently belongs to the group.
func (s *MembershipService) IsMember(groupID uuid.UUID, userID string) (bool, error) {
	group, err := s.groups.Load(groupID)
	if err != nil {
		return false, err
	}
	return group.IsMember(userID), nil
}

// IsBanned reports whether the user holds a ban record for the group.
func (s *MembershipService) IsBanned(groupID uuid.UUID, userID string) (bool, error) {
	group, err := s.groups.Load(groupID)
	if err != nil {
		return false, err
	}
	return group.IsBanned(userID), nil
}

// HasPendingRequest reports whether the user has an unresolved join
// request on the group.
func (s *MembershipService) HasPendingRequest(groupID uuid.UUID, userID string) (bool, error) {
	group, err := s.groups.Load(groupID)
	if err != nil {
		return false, err
	}
	return group.HasPendingRequest(userID), nil
}

// Owner returns the group's current owner id.
func (s *MembershipService) Owner(groupID uuid.UUID) (string, error) {
	group, err := s.groups.Load(groupID)
	if err != nil {
		return "", err
	}
	return group.OwnerID, nil
}

// loadRequest resolves a pending join request on behalf of the group
// owner. The returned pointer aliases the group's slice so a status
// transition lands in the next Save.
func (s *MembershipService) loadRequest(groupID uuid.UUID, userID string, requestID uuid.UUID) (*domain.Group, *domain.JoinRequest, error) {
	group, err := s.groups.Load(groupID)
	if err != nil {
		return nil, nil, err
	}
	if group.OwnerID != userID {
		return nil, nil, fmt.Errorf("%w: user %s on group %s", errors.ErrNotOwner, userID, groupID)
	}
	request := group.RequestByID(requestID)
	if request == nil {
		return nil, nil, fmt.Errorf("%w: request %s in group %s", errors.ErrRequestNotFound, requestID, groupID)
	}
	if request.Status != domain.RequestPending {
		return nil, nil, fmt.Errorf("%w: request %s is %s", errors.ErrRequestAlreadyProcessed, requestID, request.Status)
	}
	return group, request, nil
}

// indexUserJoin maintains the user-side group index after a successful
// group-side membership write. On failure the group-side change is
// compensated: the member is removed again and revert, when given,
// undoes any extra aggregate mutation (e.g. a request status flip)
// before the compensating save.
func (s *MembershipService) indexUserJoin(group *domain.Group, userID string, revert func()) error {
	user, err := s.users.Load(userID)
	if err == nil {
		user.AddGroup(group.ID)
		err = s.users.Save(user)
	}
	if err != nil {
		group.RemoveMember(userID)
		if revert != nil {
			revert()
		}
		if cerr := s.groups.Save(group); cerr != nil {
			s.log.Error("compensation failed, stray member left in group",
				"group", group.ID, "user", userID, "error", cerr)
		}
		return err
	}
	return nil
}

func (s *MembershipService) publishMembership(groupID uuid.UUID, userID string, change event.MembershipChange) {
	s.bus.Publish(event.MembershipChanged{
		Group:  groupID,
		UserID: userID,
		Change: change,
		At:     s.now().UTC(),
	})
}
