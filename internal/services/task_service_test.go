package services

import (
	"testing"
	"time"

	"github.com/kawasemi/project-tracker-api/internal/models"
	"github.com/kawasemi/project-tracker-api/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// TaskServiceTestSuite defines the test suite for TaskService
type TaskServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	service *TaskService
	access  *AccessService
	project *ProjectService
}

// SetupTest runs before each test
func (suite *TaskServiceTestSuite) SetupTest() {
	var err error

	// Create in-memory SQLite database
	suite.db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	suite.Require().NoError(err)

	// Run migrations
	err = suite.db.AutoMigrate(
		&models.User{},
		&models.Project{},
		&models.ProjectMember{},
		&models.Task{},
		&models.TaskComment{},
	)
	suite.Require().NoError(err)

	taskRepo := repository.NewTaskRepository(suite.db)
	projectRepo := repository.NewProjectRepository(suite.db)
	userRepo := repository.NewUserRepository(suite.db)

	suite.access = NewAccessService(projectRepo)
	suite.service = NewTaskService(taskRepo, userRepo, suite.access)
	suite.project = NewProjectService(projectRepo, userRepo, suite.access)
}

// TearDownTest runs after each test
func (suite *TaskServiceTestSuite) TearDownTest() {
	sqlDB, err := suite.db.DB()
	suite.Require().NoError(err)
	sqlDB.Close()
}

// Helper function to create test data
func (suite *TaskServiceTestSuite) createTestUser(email string) *models.User {
	user := &models.User{
		Email:        email,
		DisplayName:  email,
		PasswordHash: "hashedpassword",
	}
	suite.Require().NoError(suite.db.Create(user).Error)
	return user
}

func (suite *TaskServiceTestSuite) createTestProject(name string, ownerID uint64) *models.Project {
	project := &models.Project{
		Name:    name,
		OwnerID: ownerID,
	}
	suite.Require().NoError(suite.db.Create(project).Error)
	return project
}

func (suite *TaskServiceTestSuite) shareTestProject(projectID, userID uint64, role models.ProjectRole) {
	member := &models.ProjectMember{
		ProjectID: projectID,
		UserID:    userID,
		Role:      role,
		SharedAt:  time.Now(),
	}
	suite.Require().NoError(suite.db.Create(member).Error)
}

func (suite *TaskServiceTestSuite) createTestTask(name string, projectID, creatorID uint64, parentID *uint64, status models.TaskStatus) *models.Task {
	task := &models.Task{
		Name:      name,
		Status:    status,
		Priority:  models.TaskPriorityMedium,
		ProjectID: projectID,
		ParentID:  parentID,
		CreatorID: creatorID,
	}
	suite.Require().NoError(suite.db.Create(task).Error)
	return task
}

func (suite *TaskServiceTestSuite) reloadTask(id uint64) *models.Task {
	var task models.Task
	suite.Require().NoError(suite.db.First(&task, id).Error)
	return &task
}

// TestCreateTask_Defaults tests status, priority and position defaulting
func (suite *TaskServiceTestSuite) TestCreateTask_Defaults() {
	owner := suite.createTestUser("owner@example.com")
	project := suite.createTestProject("Project", owner.ID)

	first, err := suite.service.CreateTask(project.ID, owner.ID, CreateTaskInput{Name: "First"})
	suite.Require().NoError(err)
	assert.Equal(suite.T(), models.TaskStatusTodo, first.Status)
	assert.Equal(suite.T(), models.TaskPriorityMedium, first.Priority)
	assert.Equal(suite.T(), 0, first.Position)

	// The next root task lands after its sibling.
	second, err := suite.service.CreateTask(project.ID, owner.ID, CreateTaskInput{Name: "Second"})
	suite.Require().NoError(err)
	assert.Equal(suite.T(), 1, second.Position)
}

// TestCreateTask_EmptyName tests name validation
func (suite *TaskServiceTestSuite) TestCreateTask_EmptyName() {
	owner := suite.createTestUser("owner@example.com")
	project := suite.createTestProject("Project", owner.ID)

	_, err := suite.service.CreateTask(project.ID, owner.ID, CreateTaskInput{Name: "   "})
	assert.ErrorIs(suite.T(), err, ErrTaskNameRequired)
}

// TestCreateTask_InvalidStatus tests status validation
func (suite *TaskServiceTestSuite) TestCreateTask_InvalidStatus() {
	owner := suite.createTestUser("owner@example.com")
	project := suite.createTestProject("Project", owner.ID)

	_, err := suite.service.CreateTask(project.ID, owner.ID, CreateTaskInput{
		Name:   "Task",
		Status: models.TaskStatus("BLOCKED"),
	})
	assert.ErrorIs(suite.T(), err, ErrInvalidTaskStatus)
}

// TestCreateTask_ParentInOtherProject tests cross-project parent rejection
func (suite *TaskServiceTestSuite) TestCreateTask_ParentInOtherProject() {
	owner := suite.createTestUser("owner@example.com")
	project := suite.createTestProject("Project", owner.ID)
	other := suite.createTestProject("Other", owner.ID)
	foreign := suite.createTestTask("Foreign", other.ID, owner.ID, nil, models.TaskStatusTodo)

	_, err := suite.service.CreateTask(project.ID, owner.ID, CreateTaskInput{
		Name:     "Child",
		ParentID: &foreign.ID,
	})
	assert.ErrorIs(suite.T(), err, ErrParentProjectMismatch)
}

// TestCreateTask_MissingParent tests dangling parent rejection
func (suite *TaskServiceTestSuite) TestCreateTask_MissingParent() {
	owner := suite.createTestUser("owner@example.com")
	project := suite.createTestProject("Project", owner.ID)

	missing := uint64(9999)
	_, err := suite.service.CreateTask(project.ID, owner.ID, CreateTaskInput{
		Name:     "Child",
		ParentID: &missing,
	})
	assert.ErrorIs(suite.T(), err, ErrParentTaskNotFound)
}

// TestStatusRollUp_PartialThenComplete tests the derived parent status as
// children finish one by one
func (suite *TaskServiceTestSuite) TestStatusRollUp_PartialThenComplete() {
	owner := suite.createTestUser("owner@example.com")
	project := suite.createTestProject("Project", owner.ID)
	parent := suite.createTestTask("Parent", project.ID, owner.ID, nil, models.TaskStatusTodo)
	childB := suite.createTestTask("B", project.ID, owner.ID, &parent.ID, models.TaskStatusTodo)
	childC := suite.createTestTask("C", project.ID, owner.ID, &parent.ID, models.TaskStatusTodo)

	done := models.TaskStatusDone
	_, err := suite.service.UpdateTask(project.ID, childB.ID, owner.ID, UpdateTaskInput{Status: &done})
	suite.Require().NoError(err)
	assert.Equal(suite.T(), models.TaskStatusInProgress, suite.reloadTask(parent.ID).Status)

	_, err = suite.service.UpdateTask(project.ID, childC.ID, owner.ID, UpdateTaskInput{Status: &done})
	suite.Require().NoError(err)
	assert.Equal(suite.T(), models.TaskStatusDone, suite.reloadTask(parent.ID).Status)
}

// TestStatusRollUp_PropagatesUpTheChain tests a grandchild completing the
// whole ancestor chain
func (suite *TaskServiceTestSuite) TestStatusRollUp_PropagatesUpTheChain() {
	owner := suite.createTestUser("owner@example.com")
	project := suite.createTestProject("Project", owner.ID)
	taskA := suite.createTestTask("A", project.ID, owner.ID, nil, models.TaskStatusTodo)
	taskB := suite.createTestTask("B", project.ID, owner.ID, &taskA.ID, models.TaskStatusTodo)
	taskC := suite.createTestTask("C", project.ID, owner.ID, &taskB.ID, models.TaskStatusTodo)

	done := models.TaskStatusDone
	_, err := suite.service.UpdateTask(project.ID, taskC.ID, owner.ID, UpdateTaskInput{Status: &done})
	suite.Require().NoError(err)

	assert.Equal(suite.T(), models.TaskStatusDone, suite.reloadTask(taskB.ID).Status)
	assert.Equal(suite.T(), models.TaskStatusDone, suite.reloadTask(taskA.ID).Status)
}

// TestStatusRollUp_NewChildReopensDoneParent tests that adding a todo child
// under a done parent re-derives the parent
func (suite *TaskServiceTestSuite) TestStatusRollUp_NewChildReopensDoneParent() {
	owner := suite.createTestUser("owner@example.com")
	project := suite.createTestProject("Project", owner.ID)
	parent := suite.createTestTask("Parent", project.ID, owner.ID, nil, models.TaskStatusTodo)
	suite.createTestTask("Done child", project.ID, owner.ID, &parent.ID, models.TaskStatusDone)
	suite.Require().NoError(suite.db.Model(&models.Task{}).Where("id = ?", parent.ID).Update("status", models.TaskStatusDone).Error)

	_, err := suite.service.CreateTask(project.ID, owner.ID, CreateTaskInput{
		Name:     "New child",
		ParentID: &parent.ID,
	})
	suite.Require().NoError(err)

	assert.Equal(suite.T(), models.TaskStatusInProgress, suite.reloadTask(parent.ID).Status)
}

// TestUpdateTask_SelfParent tests self-parenting rejection
func (suite *TaskServiceTestSuite) TestUpdateTask_SelfParent() {
	owner := suite.createTestUser("owner@example.com")
	project := suite.createTestProject("Project", owner.ID)
	task := suite.createTestTask("Task", project.ID, owner.ID, nil, models.TaskStatusTodo)

	_, err := suite.service.UpdateTask(project.ID, task.ID, owner.ID, UpdateTaskInput{ParentID: &task.ID})
	assert.ErrorIs(suite.T(), err, ErrSelfParent)
}

// TestUpdateTask_CycleRejectedAndStateUnchanged tests that moving a task under
// its own descendant fails without touching the tree
func (suite *TaskServiceTestSuite) TestUpdateTask_CycleRejectedAndStateUnchanged() {
	owner := suite.createTestUser("owner@example.com")
	project := suite.createTestProject("Project", owner.ID)
	taskA := suite.createTestTask("A", project.ID, owner.ID, nil, models.TaskStatusTodo)
	taskB := suite.createTestTask("B", project.ID, owner.ID, &taskA.ID, models.TaskStatusTodo)
	taskC := suite.createTestTask("C", project.ID, owner.ID, &taskB.ID, models.TaskStatusTodo)

	_, err := suite.service.UpdateTask(project.ID, taskA.ID, owner.ID, UpdateTaskInput{ParentID: &taskC.ID})
	assert.ErrorIs(suite.T(), err, ErrTaskCycle)

	// The hierarchy must be exactly as before the attempt.
	assert.Nil(suite.T(), suite.reloadTask(taskA.ID).ParentID)
	assert.Equal(suite.T(), taskA.ID, *suite.reloadTask(taskB.ID).ParentID)
	assert.Equal(suite.T(), taskB.ID, *suite.reloadTask(taskC.ID).ParentID)
}

// TestUpdateTask_ReparentRollsUpBothChains tests re-derivation of the old and
// new parents after a move
func (suite *TaskServiceTestSuite) TestUpdateTask_ReparentRollsUpBothChains() {
	owner := suite.createTestUser("owner@example.com")
	project := suite.createTestProject("Project", owner.ID)
	oldParent := suite.createTestTask("Old parent", project.ID, owner.ID, nil, models.TaskStatusTodo)
	newParent := suite.createTestTask("New parent", project.ID, owner.ID, nil, models.TaskStatusTodo)
	suite.createTestTask("Done sibling", project.ID, owner.ID, &oldParent.ID, models.TaskStatusDone)
	moved := suite.createTestTask("Moved", project.ID, owner.ID, &oldParent.ID, models.TaskStatusTodo)
	suite.Require().NoError(suite.db.Model(&models.Task{}).Where("id = ?", oldParent.ID).Update("status", models.TaskStatusInProgress).Error)

	_, err := suite.service.UpdateTask(project.ID, moved.ID, owner.ID, UpdateTaskInput{ParentID: &newParent.ID})
	suite.Require().NoError(err)

	// Old parent's remaining child is done; new parent gained a todo child.
	assert.Equal(suite.T(), models.TaskStatusDone, suite.reloadTask(oldParent.ID).Status)
	assert.Equal(suite.T(), models.TaskStatusTodo, suite.reloadTask(newParent.ID).Status)
}

// TestUpdateTask_ClearDueDate tests resetting an optional field
func (suite *TaskServiceTestSuite) TestUpdateTask_ClearDueDate() {
	owner := suite.createTestUser("owner@example.com")
	project := suite.createTestProject("Project", owner.ID)
	task := suite.createTestTask("Task", project.ID, owner.ID, nil, models.TaskStatusTodo)
	due := time.Now().Add(48 * time.Hour)
	suite.Require().NoError(suite.db.Model(&models.Task{}).Where("id = ?", task.ID).Update("due_date", due).Error)

	updated, err := suite.service.UpdateTask(project.ID, task.ID, owner.ID, UpdateTaskInput{ClearDueDate: true})
	suite.Require().NoError(err)
	assert.Nil(suite.T(), updated.DueDate)
}

// TestUpdateTask_NegativeHours tests hour validation
func (suite *TaskServiceTestSuite) TestUpdateTask_NegativeHours() {
	owner := suite.createTestUser("owner@example.com")
	project := suite.createTestProject("Project", owner.ID)
	task := suite.createTestTask("Task", project.ID, owner.ID, nil, models.TaskStatusTodo)

	negative := -1.5
	_, err := suite.service.UpdateTask(project.ID, task.ID, owner.ID, UpdateTaskInput{EstimatedHours: &negative})
	assert.ErrorIs(suite.T(), err, ErrNegativeHours)
}

// TestDeleteTask_CascadesToSubtree tests that deleting a task removes all
// descendants in one unit
func (suite *TaskServiceTestSuite) TestDeleteTask_CascadesToSubtree() {
	owner := suite.createTestUser("owner@example.com")
	project := suite.createTestProject("Project", owner.ID)
	taskA := suite.createTestTask("A", project.ID, owner.ID, nil, models.TaskStatusTodo)
	taskB := suite.createTestTask("B", project.ID, owner.ID, &taskA.ID, models.TaskStatusTodo)
	taskC := suite.createTestTask("C", project.ID, owner.ID, &taskB.ID, models.TaskStatusTodo)
	unrelated := suite.createTestTask("Unrelated", project.ID, owner.ID, nil, models.TaskStatusTodo)

	err := suite.service.DeleteTask(project.ID, taskA.ID, owner.ID)
	suite.Require().NoError(err)

	_, _, err = suite.service.GetTask(project.ID, taskB.ID, owner.ID)
	assert.ErrorIs(suite.T(), err, ErrTaskNotFound)
	_, _, err = suite.service.GetTask(project.ID, taskC.ID, owner.ID)
	assert.ErrorIs(suite.T(), err, ErrTaskNotFound)

	_, _, err = suite.service.GetTask(project.ID, unrelated.ID, owner.ID)
	assert.NoError(suite.T(), err)
}

// TestDeleteTask_RollsUpFormerParent tests the former parent's derived status
// after a child subtree disappears
func (suite *TaskServiceTestSuite) TestDeleteTask_RollsUpFormerParent() {
	owner := suite.createTestUser("owner@example.com")
	project := suite.createTestProject("Project", owner.ID)
	parent := suite.createTestTask("Parent", project.ID, owner.ID, nil, models.TaskStatusTodo)
	suite.createTestTask("Done child", project.ID, owner.ID, &parent.ID, models.TaskStatusDone)
	todoChild := suite.createTestTask("Todo child", project.ID, owner.ID, &parent.ID, models.TaskStatusTodo)
	suite.Require().NoError(suite.db.Model(&models.Task{}).Where("id = ?", parent.ID).Update("status", models.TaskStatusInProgress).Error)

	err := suite.service.DeleteTask(project.ID, todoChild.ID, owner.ID)
	suite.Require().NoError(err)

	assert.Equal(suite.T(), models.TaskStatusDone, suite.reloadTask(parent.ID).Status)
}

// TestDeleteTask_MissingTask tests deleting an unknown ID
func (suite *TaskServiceTestSuite) TestDeleteTask_MissingTask() {
	owner := suite.createTestUser("owner@example.com")
	project := suite.createTestProject("Project", owner.ID)

	err := suite.service.DeleteTask(project.ID, 9999, owner.ID)
	assert.ErrorIs(suite.T(), err, ErrTaskNotFound)
}

// TestGetTask_OtherProjectNotLeaked tests that a task from another project
// reads as not found
func (suite *TaskServiceTestSuite) TestGetTask_OtherProjectNotLeaked() {
	owner := suite.createTestUser("owner@example.com")
	project := suite.createTestProject("Project", owner.ID)
	other := suite.createTestProject("Other", owner.ID)
	foreign := suite.createTestTask("Foreign", other.ID, owner.ID, nil, models.TaskStatusTodo)

	_, _, err := suite.service.GetTask(project.ID, foreign.ID, owner.ID)
	assert.ErrorIs(suite.T(), err, ErrTaskNotFound)
}

// TestPermissions_RoleLadder tests the outsider/viewer/editor gates on task
// mutation
func (suite *TaskServiceTestSuite) TestPermissions_RoleLadder() {
	owner := suite.createTestUser("owner@example.com")
	viewer := suite.createTestUser("viewer@example.com")
	outsider := suite.createTestUser("outsider@example.com")
	project := suite.createTestProject("Project", owner.ID)
	suite.shareTestProject(project.ID, viewer.ID, models.RoleViewer)

	// An outsider cannot even list.
	_, _, err := suite.service.ListTasks(project.ID, outsider.ID, TaskFilter{})
	assert.ErrorIs(suite.T(), err, ErrProjectAccessDenied)

	// A viewer can list but not create.
	_, _, err = suite.service.ListTasks(project.ID, viewer.ID, TaskFilter{})
	assert.NoError(suite.T(), err)
	_, err = suite.service.CreateTask(project.ID, viewer.ID, CreateTaskInput{Name: "Task"})
	assert.ErrorIs(suite.T(), err, ErrInsufficientRole)

	// Raised to editor, the same user can create.
	_, err = suite.project.ShareProject(project.ID, owner.ID, viewer.ID, models.RoleEditor)
	suite.Require().NoError(err)
	_, err = suite.service.CreateTask(project.ID, viewer.ID, CreateTaskInput{Name: "Task"})
	assert.NoError(suite.T(), err)
}

// TestListTasks_AppliesFilterAndReturnsRole tests filtered listing
func (suite *TaskServiceTestSuite) TestListTasks_AppliesFilterAndReturnsRole() {
	owner := suite.createTestUser("owner@example.com")
	project := suite.createTestProject("Project", owner.ID)
	suite.createTestTask("Open", project.ID, owner.ID, nil, models.TaskStatusTodo)
	suite.createTestTask("Closed", project.ID, owner.ID, nil, models.TaskStatusDone)

	done := models.TaskStatusDone
	tasks, role, err := suite.service.ListTasks(project.ID, owner.ID, TaskFilter{Status: &done})
	suite.Require().NoError(err)
	assert.Equal(suite.T(), models.RoleOwner, role)
	assert.Len(suite.T(), tasks, 1)
	assert.Equal(suite.T(), "Closed", tasks[0].Name)
}

// TestReorderTasks_AssignsPositionsByIndex tests position assignment
func (suite *TaskServiceTestSuite) TestReorderTasks_AssignsPositionsByIndex() {
	owner := suite.createTestUser("owner@example.com")
	project := suite.createTestProject("Project", owner.ID)
	task1 := suite.createTestTask("One", project.ID, owner.ID, nil, models.TaskStatusTodo)
	task2 := suite.createTestTask("Two", project.ID, owner.ID, nil, models.TaskStatusTodo)
	task3 := suite.createTestTask("Three", project.ID, owner.ID, nil, models.TaskStatusTodo)

	err := suite.service.ReorderTasks(project.ID, owner.ID, ReorderTasksInput{
		TaskIDs: []uint64{task3.ID, task1.ID, task2.ID},
	})
	suite.Require().NoError(err)

	assert.Equal(suite.T(), 0, suite.reloadTask(task3.ID).Position)
	assert.Equal(suite.T(), 1, suite.reloadTask(task1.ID).Position)
	assert.Equal(suite.T(), 2, suite.reloadTask(task2.ID).Position)
}

// TestReorderTasks_ColumnMoveSetsStatusAndRollsUp tests a drag-and-drop move
// into another column
func (suite *TaskServiceTestSuite) TestReorderTasks_ColumnMoveSetsStatusAndRollsUp() {
	owner := suite.createTestUser("owner@example.com")
	project := suite.createTestProject("Project", owner.ID)
	parent := suite.createTestTask("Parent", project.ID, owner.ID, nil, models.TaskStatusTodo)
	child := suite.createTestTask("Child", project.ID, owner.ID, &parent.ID, models.TaskStatusTodo)

	done := models.TaskStatusDone
	err := suite.service.ReorderTasks(project.ID, owner.ID, ReorderTasksInput{
		TaskIDs: []uint64{child.ID},
		Status:  &done,
	})
	suite.Require().NoError(err)

	assert.Equal(suite.T(), models.TaskStatusDone, suite.reloadTask(child.ID).Status)
	assert.Equal(suite.T(), models.TaskStatusDone, suite.reloadTask(parent.ID).Status)
}

// TestReorderTasks_Validation tests the reorder input gates
func (suite *TaskServiceTestSuite) TestReorderTasks_Validation() {
	owner := suite.createTestUser("owner@example.com")
	project := suite.createTestProject("Project", owner.ID)
	other := suite.createTestProject("Other", owner.ID)
	task := suite.createTestTask("Task", project.ID, owner.ID, nil, models.TaskStatusTodo)
	foreign := suite.createTestTask("Foreign", other.ID, owner.ID, nil, models.TaskStatusTodo)

	err := suite.service.ReorderTasks(project.ID, owner.ID, ReorderTasksInput{})
	assert.ErrorIs(suite.T(), err, ErrNoTaskIDs)

	err = suite.service.ReorderTasks(project.ID, owner.ID, ReorderTasksInput{TaskIDs: []uint64{task.ID, task.ID}})
	assert.ErrorIs(suite.T(), err, ErrDuplicateTaskIDs)

	err = suite.service.ReorderTasks(project.ID, owner.ID, ReorderTasksInput{TaskIDs: []uint64{task.ID, foreign.ID}})
	assert.ErrorIs(suite.T(), err, ErrTaskOutsideProject)
}

// TestAddComment tests commenting as a viewer
func (suite *TaskServiceTestSuite) TestAddComment() {
	owner := suite.createTestUser("owner@example.com")
	viewer := suite.createTestUser("viewer@example.com")
	project := suite.createTestProject("Project", owner.ID)
	suite.shareTestProject(project.ID, viewer.ID, models.RoleViewer)
	task := suite.createTestTask("Task", project.ID, owner.ID, nil, models.TaskStatusTodo)

	comment, err := suite.service.AddComment(project.ID, task.ID, viewer.ID, "Looks good")
	suite.Require().NoError(err)
	assert.Equal(suite.T(), viewer.ID, comment.AuthorID)

	_, err = suite.service.AddComment(project.ID, task.ID, viewer.ID, "   ")
	assert.ErrorIs(suite.T(), err, ErrCommentBodyRequired)

	_, comments, err := suite.service.GetTask(project.ID, task.ID, owner.ID)
	suite.Require().NoError(err)
	assert.Len(suite.T(), comments, 1)
}

// TestAssignee_MustHaveProjectAccess tests assignee validation
func (suite *TaskServiceTestSuite) TestAssignee_MustHaveProjectAccess() {
	owner := suite.createTestUser("owner@example.com")
	outsider := suite.createTestUser("outsider@example.com")
	viewer := suite.createTestUser("viewer@example.com")
	project := suite.createTestProject("Project", owner.ID)
	suite.shareTestProject(project.ID, viewer.ID, models.RoleViewer)

	_, err := suite.service.CreateTask(project.ID, owner.ID, CreateTaskInput{
		Name:       "Task",
		AssigneeID: &outsider.ID,
	})
	assert.ErrorIs(suite.T(), err, ErrInvalidAssignee)

	task, err := suite.service.CreateTask(project.ID, owner.ID, CreateTaskInput{
		Name:       "Task",
		AssigneeID: &viewer.ID,
	})
	suite.Require().NoError(err)
	assert.Equal(suite.T(), viewer.ID, *task.AssigneeID)
}

// TestSuite runs the test suite
func TestTaskServiceTestSuite(t *testing.T) {
	suite.Run(t, new(TaskServiceTestSuite))
}
