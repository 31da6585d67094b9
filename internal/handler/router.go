package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/edustack-io/campus-api/internal/middleware"
	"github.com/edustack-io/campus-api/internal/models"
	"github.com/edustack-io/campus-api/internal/repository"
	"github.com/edustack-io/campus-api/internal/service"
	"github.com/edustack-io/campus-api/pkg/config"
	"github.com/edustack-io/campus-api/pkg/logger"
	corsmiddleware "github.com/edustack-io/campus-api/pkg/middleware/cors"
	reqidmiddleware "github.com/edustack-io/campus-api/pkg/middleware/requestid"
)

// RouterDeps carries the services and repositories the router wires together.
type RouterDeps struct {
	AuthService *service.AuthService
	Metrics     *service.MetricsService
	UserRepo    *repository.UserRepository

	Auth              *AuthHandler
	Users             *UserHandler
	Schools           *SchoolHandler
	Onboarding        *OnboardingHandler
	Students          *StudentHandler
	Teachers          *TeacherHandler
	Parents           *ParentHandler
	Classes           *ClassHandler
	Subjects          *SubjectHandler
	Enrollments       *EnrollmentHandler
	TeacherAssignment *TeacherAssignmentHandler
	Exams             *ExamHandler
	Assignments       *AssignmentHandler
	Meetings          *MeetingHandler
	Calendar          *CalendarHandler
	Feed              *FeedHandler
	MetricsHandler    *MetricsHandler
}

// NewRouter assembles the gin engine with all routes and middleware.
func NewRouter(cfg *config.Config, logr *zap.Logger, deps RouterDeps) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))

	r.GET("/health", deps.MetricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", deps.MetricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// The feed URL embeds a signed token, so it stays outside the JWT guard.
	r.GET("/feeds/:token", deps.Feed.Feed)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", deps.Auth.Login)
		auth.POST("/refresh", deps.Auth.Refresh)

		protected := auth.Group("", middleware.JWT(deps.AuthService))
		protected.POST("/logout", deps.Auth.Logout)
		protected.PUT("/password", deps.Auth.ChangePassword)
		protected.GET("/me", deps.Auth.Me)
	}

	secured := api.Group("", middleware.JWT(deps.AuthService))

	admin := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleTeacher)
	superadmin := middleware.RequireRoles(models.RoleSuperAdmin)

	schools := secured.Group("/schools")
	{
		schools.GET("", superadmin, deps.Schools.List)
		schools.POST("", superadmin, deps.Schools.Create)
		schools.GET("/:id", admin, deps.Schools.Get)
		schools.PUT("/:id", admin, deps.Schools.Update)
	}

	onboarding := secured.Group("/onboarding", admin)
	{
		onboarding.GET("", deps.Onboarding.Progress)
		onboarding.PUT("/steps/:step", deps.Onboarding.UpdateStep)
		onboarding.POST("/reset", deps.Onboarding.Reset)
	}

	users := secured.Group("/users", admin)
	{
		users.GET("", deps.Users.List)
		users.GET("/:id", deps.Users.Get)
		users.POST("", middleware.Audit(deps.UserRepo, models.AuditActionUserCreate, "users"), deps.Users.Create)
		users.PUT("/:id", middleware.Audit(deps.UserRepo, models.AuditActionUserUpdate, "users"), deps.Users.Update)
		users.DELETE("/:id", middleware.Audit(deps.UserRepo, models.AuditActionUserDelete, "users"), deps.Users.Delete)
	}

	students := secured.Group("/students")
	{
		students.GET("", staff, deps.Students.List)
		students.GET("/:id", staff, deps.Students.Get)
		students.POST("", admin, deps.Students.Create)
		students.PUT("/:id", admin, deps.Students.Update)
		students.DELETE("/:id", admin, deps.Students.Delete)
	}

	teachers := secured.Group("/teachers")
	{
		teachers.GET("", staff, deps.Teachers.List)
		teachers.GET("/:id", staff, deps.Teachers.Get)
		teachers.POST("", admin, deps.Teachers.Create)
		teachers.PUT("/:id", admin, deps.Teachers.Update)
		teachers.DELETE("/:id", admin, deps.Teachers.Delete)
		teachers.GET("/:id/assignments", staff, deps.TeacherAssignment.ListByTeacher)
	}

	parents := secured.Group("/parents", admin)
	{
		parents.GET("", deps.Parents.List)
		parents.GET("/:id", deps.Parents.Get)
		parents.POST("", deps.Parents.Create)
		parents.PUT("/:id", deps.Parents.Update)
		parents.DELETE("/:id", deps.Parents.Delete)
		parents.GET("/:id/children", deps.Parents.Children)
		parents.POST("/:id/children", deps.Parents.LinkStudent)
		parents.DELETE("/:id/children/:studentId", deps.Parents.UnlinkStudent)
	}

	classes := secured.Group("/classes")
	{
		classes.GET("", staff, deps.Classes.List)
		classes.GET("/:id", staff, deps.Classes.Get)
		classes.POST("", admin, deps.Classes.Create)
		classes.PUT("/:id", admin, deps.Classes.Update)
		classes.DELETE("/:id", admin, deps.Classes.Delete)
		classes.GET("/:id/sections", staff, deps.Classes.Sections)
		classes.POST("/:id/sections", admin, deps.Classes.AddSection)
		classes.DELETE("/:id/sections/:sectionId", admin, deps.Classes.RemoveSection)
		classes.GET("/:id/assignments", staff, deps.TeacherAssignment.ListByClass)
	}

	subjects := secured.Group("/subjects")
	{
		subjects.GET("", staff, deps.Subjects.List)
		subjects.GET("/:id", staff, deps.Subjects.Get)
		subjects.POST("", admin, deps.Subjects.Create)
		subjects.PUT("/:id", admin, deps.Subjects.Update)
		subjects.DELETE("/:id", admin, deps.Subjects.Delete)
	}

	enrollments := secured.Group("/enrollments", admin)
	{
		enrollments.GET("", deps.Enrollments.List)
		enrollments.POST("", deps.Enrollments.Enroll)
		enrollments.POST("/transfer", deps.Enrollments.Transfer)
		enrollments.DELETE("/:studentId", deps.Enrollments.Leave)
	}

	assignments := secured.Group("/teacher-assignments", admin)
	{
		assignments.POST("", deps.TeacherAssignment.Assign)
		assignments.DELETE("/:id", deps.TeacherAssignment.Unassign)
	}

	exams := secured.Group("/exams")
	{
		exams.GET("", staff, deps.Exams.List)
		exams.GET("/:id", staff, deps.Exams.Get)
		exams.POST("", staff, deps.Exams.Create)
		exams.PUT("/:id", staff, deps.Exams.Update)
		exams.DELETE("/:id", staff, deps.Exams.Delete)
	}

	homework := secured.Group("/assignments")
	{
		homework.GET("", staff, deps.Assignments.List)
		homework.GET("/:id", staff, deps.Assignments.Get)
		homework.POST("", staff, deps.Assignments.Create)
		homework.PUT("/:id", staff, deps.Assignments.Update)
		homework.DELETE("/:id", staff, deps.Assignments.Delete)
	}

	meetings := secured.Group("/meetings", staff)
	{
		meetings.GET("", deps.Meetings.List)
		meetings.GET("/:id", deps.Meetings.Get)
		meetings.POST("", deps.Meetings.Create)
		meetings.PUT("/:id", deps.Meetings.Update)
		meetings.DELETE("/:id", deps.Meetings.Delete)
	}

	calendar := secured.Group("/calendar")
	{
		calendar.GET("/events", deps.Calendar.ListWindow)
		calendar.GET("/events/:id", deps.Calendar.Get)
		calendar.GET("/events/:id/occurrences", deps.Calendar.NextOccurrences)
		calendar.GET("/events/:id/occurrences/count", deps.Calendar.CountOccurrences)
		calendar.POST("/events", staff, deps.Calendar.Create)
		calendar.PUT("/events/:id", staff, deps.Calendar.Update)
		calendar.DELETE("/events/:id", staff, deps.Calendar.Delete)

		calendar.GET("/categories", deps.Calendar.ListCategories)
		calendar.POST("/categories", admin, deps.Calendar.CreateCategory)
		calendar.DELETE("/categories/:id", admin, deps.Calendar.DeleteCategory)

		calendar.POST("/feed/token", deps.Feed.Token)
	}

	return r
}
