package rbac

// Default policy. Instructors additionally pass ownership checks in the
// handlers for course-scoped writes.
var RolePermissions = map[string][]string{
	"student": {
		"course:view",
		"course:enroll",
		"progress:view-own",
		"progress:record-own",
		"quiz:view",
		"attempt:create",
		"attempt:submit",
		"attempt:view-own",
		"assignment:view",
		"submission:create",
		"submission:withdraw",
		"submission:view-own",
		"gradebook:view-own",
		"user:change_password",
	},
	"instructor": {
		"course:view",
		"course:create",
		"course:update",
		"course:delete_own",
		"quiz:view",
		"quiz:create",
		"quiz:update",
		"attempt:view-all",
		"attempt:grade",
		"assignment:view",
		"assignment:create",
		"assignment:update",
		"submission:view-all",
		"submission:grade",
		"stats:view",
		"user:change_password",
	},
	"admin": {
		"*", // everything
	},
}
