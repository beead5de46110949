package command

// Task service patterns.
const (
	PatternCreateTask       = "createTask"
	PatternFindAllTasks     = "findAllTasks"
	PatternFindOneTask      = "findOneTask"
	PatternUpdateTask       = "updateTask"
	PatternRemoveTask       = "removeTask"
	PatternUpdateTaskStatus = "updateTaskStatus"
	PatternUpdateTaskOrder  = "updateTaskOrder"
	PatternUpdateTaskActive = "updateTaskActive"
)

// User service patterns.
const (
	PatternValidateUser = "validate_user"
	PatternGetUser      = "get_user"
	PatternFindAllUsers = "findAllUsers"
	PatternCreateUser   = "create_user"
)

// TaskPatterns are the patterns a task service must serve.
func TaskPatterns() []string {
	return []string{
		PatternCreateTask,
		PatternFindAllTasks,
		PatternFindOneTask,
		PatternUpdateTask,
		PatternRemoveTask,
		PatternUpdateTaskStatus,
		PatternUpdateTaskOrder,
		PatternUpdateTaskActive,
	}
}

// UserPatterns are the patterns a user service must serve.
func UserPatterns() []string {
	return []string{
		PatternValidateUser,
		PatternGetUser,
		PatternFindAllUsers,
		PatternCreateUser,
	}
}
