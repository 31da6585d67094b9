package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/edustack-io/campus-api/internal/models"
	appErrors "github.com/edustack-io/campus-api/pkg/errors"
)

type visibilityEnrollmentRepository interface {
	ListActiveByStudent(ctx context.Context, studentID string) ([]models.Enrollment, error)
}

type visibilityParentRepository interface {
	ListChildIDs(ctx context.Context, parentID string) ([]string, error)
}

type visibilityTeacherAssignmentRepository interface {
	ListByTeacher(ctx context.Context, teacherID string) ([]models.TeacherAssignmentDetail, error)
}

type visibilityClassRepository interface {
	ListHomeroomClassIDs(ctx context.Context, teacherID string) ([]string, error)
}

// affiliation is the viewer's class/section membership resolved once per
// filter pass and reused across every event.
type affiliation struct {
	classIDs   map[string]struct{}
	sectionIDs map[string]struct{}
}

func (a affiliation) matches(event *models.CalendarEvent) bool {
	for _, classID := range event.VisibleToClasses {
		if _, ok := a.classIDs[classID]; ok {
			return true
		}
	}
	for _, sectionID := range event.VisibleToSections {
		if _, ok := a.sectionIDs[sectionID]; ok {
			return true
		}
	}
	return false
}

type rolePolicy func(ctx context.Context, viewer models.UserContext) (affiliation, error)

// VisibilityService decides which calendar events a viewer may see. Each role
// of the closed role set carries its own affiliation policy; a role outside
// the set is denied outright.
type VisibilityService struct {
	policies map[models.UserRole]rolePolicy
	logger   *zap.Logger
}

// NewVisibilityService constructs the visibility service.
func NewVisibilityService(
	enrollments visibilityEnrollmentRepository,
	parents visibilityParentRepository,
	assignments visibilityTeacherAssignmentRepository,
	classes visibilityClassRepository,
	logger *zap.Logger,
) *VisibilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &VisibilityService{logger: logger}
	svc.policies = map[models.UserRole]rolePolicy{
		models.RoleStudent: func(ctx context.Context, viewer models.UserContext) (affiliation, error) {
			return studentAffiliation(ctx, enrollments, viewer.StudentID)
		},
		models.RoleParent: func(ctx context.Context, viewer models.UserContext) (affiliation, error) {
			aff := newAffiliation()
			if viewer.ParentID == "" {
				return aff, nil
			}
			childIDs, err := parents.ListChildIDs(ctx, viewer.ParentID)
			if err != nil {
				return aff, appErrors.Wrap(err, appErrors.ErrInternal, "resolve parent children")
			}
			for _, childID := range childIDs {
				child, err := studentAffiliation(ctx, enrollments, childID)
				if err != nil {
					return aff, err
				}
				aff.merge(child)
			}
			return aff, nil
		},
		models.RoleTeacher: func(ctx context.Context, viewer models.UserContext) (affiliation, error) {
			aff := newAffiliation()
			if viewer.TeacherID == "" {
				return aff, nil
			}
			teaching, err := assignments.ListByTeacher(ctx, viewer.TeacherID)
			if err != nil {
				return aff, appErrors.Wrap(err, appErrors.ErrInternal, "resolve teacher assignments")
			}
			for _, ta := range teaching {
				aff.classIDs[ta.ClassID] = struct{}{}
				if ta.SectionID != nil {
					aff.sectionIDs[*ta.SectionID] = struct{}{}
				}
			}
			homerooms, err := classes.ListHomeroomClassIDs(ctx, viewer.TeacherID)
			if err != nil {
				return aff, appErrors.Wrap(err, appErrors.ErrInternal, "resolve homeroom classes")
			}
			for _, classID := range homerooms {
				aff.classIDs[classID] = struct{}{}
			}
			return aff, nil
		},
	}
	return svc
}

func newAffiliation() affiliation {
	return affiliation{classIDs: map[string]struct{}{}, sectionIDs: map[string]struct{}{}}
}

func (a *affiliation) merge(other affiliation) {
	for id := range other.classIDs {
		a.classIDs[id] = struct{}{}
	}
	for id := range other.sectionIDs {
		a.sectionIDs[id] = struct{}{}
	}
}

func studentAffiliation(ctx context.Context, enrollments visibilityEnrollmentRepository, studentID string) (affiliation, error) {
	aff := newAffiliation()
	if studentID == "" {
		return aff, nil
	}
	active, err := enrollments.ListActiveByStudent(ctx, studentID)
	if err != nil {
		return aff, appErrors.Wrap(err, appErrors.ErrInternal, "resolve student enrollments")
	}
	for _, enrollment := range active {
		aff.classIDs[enrollment.ClassID] = struct{}{}
		if enrollment.SectionID != nil {
			aff.sectionIDs[*enrollment.SectionID] = struct{}{}
		}
	}
	return aff, nil
}

// CanView reports whether the viewer may see the event.
func (s *VisibilityService) CanView(ctx context.Context, viewer models.UserContext, event *models.CalendarEvent) (bool, error) {
	filtered, err := s.Filter(ctx, viewer, []models.CalendarEvent{*event})
	if err != nil {
		return false, err
	}
	return len(filtered) == 1, nil
}

// Filter returns the subset of events the viewer may see. Admin roles see
// every event of their school; other roles must pass the event's role gate
// and, for targeted events, an affiliation check. Events of a foreign school
// are never returned for non-superadmin viewers.
func (s *VisibilityService) Filter(ctx context.Context, viewer models.UserContext, events []models.CalendarEvent) ([]models.CalendarEvent, error) {
	visible := make([]models.CalendarEvent, 0, len(events))

	if viewer.Role == models.RoleSuperAdmin {
		return append(visible, events...), nil
	}
	if viewer.Role == models.RoleAdmin {
		for _, event := range events {
			if event.SchoolID == viewer.SchoolID {
				visible = append(visible, event)
			}
		}
		return visible, nil
	}

	policy, ok := s.policies[viewer.Role]
	if !ok {
		s.logger.Warn("viewer with unknown role denied",
			zap.String("user_id", viewer.UserID),
			zap.String("role", string(viewer.Role)))
		return visible, nil
	}

	var aff affiliation
	resolved := false
	for _, event := range events {
		if event.SchoolID != viewer.SchoolID {
			continue
		}
		// A teacher keeps sight of the mirrored entries for records they
		// authored even when the mirror's role list omits them. Manually
		// created events grant nothing to their creator: the role gate and
		// affiliation checks apply like for anyone else.
		if viewer.Role == models.RoleTeacher && event.SourceType != nil && event.CreatedBy == viewer.UserID {
			visible = append(visible, event)
			continue
		}
		if !event.AllowsRole(viewer.Role) {
			continue
		}
		if event.SchoolWide() {
			visible = append(visible, event)
			continue
		}
		if !resolved {
			var err error
			aff, err = policy(ctx, viewer)
			if err != nil {
				return nil, err
			}
			resolved = true
		}
		if aff.matches(&event) {
			visible = append(visible, event)
		}
	}
	return visible, nil
}
