package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cioer/DoAn-sub006/internal/auth"
	"github.com/cioer/DoAn-sub006/internal/database"
	"github.com/cioer/DoAn-sub006/internal/model"
	"github.com/cioer/DoAn-sub006/internal/repository"
	"github.com/cioer/DoAn-sub006/internal/service"
	"github.com/cioer/DoAn-sub006/internal/workflow"
)

// testEnv 控制器测试环境: 内存数据库上的完整服务栈,
// 认证用测试中间件直接注入执行者
type testEnv struct {
	db     *gorm.DB
	router *gin.Engine
	actor  workflow.Actor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	proposalRepo := repository.NewProposalRepository(db)
	logRepo := repository.NewWorkflowLogRepository(db)
	idemRepo := repository.NewIdempotencyRepository(db)
	evalRepo := repository.NewEvaluationRepository(db)
	slaClock := workflow.NewSLAClock(nil, 48*time.Hour)

	proposalService := service.NewProposalService(proposalRepo, logRepo, slaClock, logger)
	transitionService := service.NewTransitionService(
		db, proposalRepo, logRepo, idemRepo, evalRepo, slaClock, nil, nil, nil, logger)
	evaluationService := service.NewEvaluationService(db, evalRepo, proposalRepo, idemRepo, nil, logger)
	verifyService := service.NewVerifyService(db, proposalRepo, logRepo, logger)

	env := &testEnv{db: db}

	router := gin.New()
	router.Use(I18nMiddleware())
	router.Use(func(c *gin.Context) {
		if env.actor.ID != "" {
			auth.SetActor(c, env.actor)
		}
		c.Next()
	})

	workflowController := NewWorkflowController(proposalService, transitionService, evaluationService, verifyService)
	evaluationController := NewEvaluationController(evaluationService)

	v1 := router.Group("/api/v1")
	v1.POST("/proposals", workflowController.CreateProposal)
	v1.GET("/proposals", workflowController.ListProposals)
	v1.GET("/proposals/:id", workflowController.GetProposal)
	v1.GET("/proposals/:id/logs", workflowController.GetLogs)
	v1.POST("/workflow/:id/:action", workflowController.Transition)
	v1.GET("/proposals/:id/verify", workflowController.VerifyProposal)
	v1.GET("/evaluations/:proposalId", evaluationController.Aggregate)

	env.router = router
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) seedProposal(t *testing.T, state workflow.State) {
	t.Helper()
	now := time.Now()
	require.NoError(t, e.db.Create(&model.ProposalModel{
		ID: "p1", Code: "DT2025-0001", Title: "Nghiên cứu thử nghiệm",
		State: string(state), OwnerID: "lecturer-1", FacultyID: "faculty-cntt",
		CreatedAt: now, UpdatedAt: now,
	}).Error)
}

func lecturer() workflow.Actor {
	return workflow.Actor{ID: "lecturer-1", Name: "Nguyễn Văn A", Role: workflow.RoleGiangVien, FacultyID: "faculty-cntt"}
}

func TestCreateProposal_Endpoint(t *testing.T) {
	env := newTestEnv(t)
	env.actor = lecturer()

	w := env.do(t, http.MethodPost, "/api/v1/proposals", gin.H{"title": "Đề tài mới"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Code)
	assert.Equal(t, "Tạo thành công", resp.Message)
}

func TestCreateProposal_Unauthorized(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/proposals", gin.H{"title": "x"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateProposal_WrongRole(t *testing.T) {
	env := newTestEnv(t)
	env.actor = workflow.Actor{ID: "khcn-1", Role: workflow.RolePhongKHCN}

	w := env.do(t, http.MethodPost, "/api/v1/proposals", gin.H{"title": "x"}, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "WRONG_ROLE", body["code"])
}

func TestTransition_Endpoint(t *testing.T) {
	env := newTestEnv(t)
	env.actor = lecturer()
	env.seedProposal(t, workflow.StateDraft)

	headers := map[string]string{"Idempotency-Key": "k1"}

	// 路径动作小写也可
	w := env.do(t, http.MethodPost, "/api/v1/workflow/p1/submit", nil, headers)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data service.TransitionResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(workflow.StateFacultyReview), resp.Data.CurrentState)
	assert.False(t, resp.Data.Replayed)

	// 相同幂等键重放原结果
	w = env.do(t, http.MethodPost, "/api/v1/workflow/p1/submit", nil, headers)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Data.Replayed)
}

func TestTransition_RequiresIdempotencyKey(t *testing.T) {
	env := newTestEnv(t)
	env.actor = lecturer()
	env.seedProposal(t, workflow.StateDraft)

	w := env.do(t, http.MethodPost, "/api/v1/workflow/p1/submit", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransition_NotFound(t *testing.T) {
	env := newTestEnv(t)
	env.actor = lecturer()

	w := env.do(t, http.MethodPost, "/api/v1/workflow/missing/submit", nil,
		map[string]string{"Idempotency-Key": "k1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTransition_WrongStateLocalizedMessage(t *testing.T) {
	env := newTestEnv(t)
	env.actor = lecturer()
	env.seedProposal(t, workflow.StateCompleted)

	w := env.do(t, http.MethodPost, "/api/v1/workflow/p1/submit?lang=en", nil,
		map[string]string{"Idempotency-Key": "k1"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "WRONG_STATE", body["code"])
	assert.Equal(t, "Action is not allowed in the current state", body["message"])
}

func TestTransition_AssignCouncilSurvivesEvaluatorSetupFailure(t *testing.T) {
	env := newTestEnv(t)
	env.actor = workflow.Actor{ID: "khcn-1", Role: workflow.RolePhongKHCN}
	env.seedProposal(t, workflow.StateSchoolSelectionReview)

	// 评审表无法写入,但转换已提交,响应必须如实报告生效的结果
	require.NoError(t, env.db.Migrator().DropTable(&model.CouncilEvaluationModel{}))

	w := env.do(t, http.MethodPost, "/api/v1/workflow/p1/assign-council", gin.H{
		"council_id":   "council-42",
		"secretary_id": "sec-1",
		"members":      []gin.H{{"id": "sec-1", "name": "Lê Văn C", "role": "THU_KY"}},
	}, map[string]string{"Idempotency-Key": "k1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data service.TransitionResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(workflow.StateOutlineCouncilReview), resp.Data.CurrentState)

	var p model.ProposalModel
	require.NoError(t, env.db.First(&p, "id = ?", "p1").Error)
	assert.Equal(t, string(workflow.StateOutlineCouncilReview), p.State)
}

func TestGetProposal_Endpoint(t *testing.T) {
	env := newTestEnv(t)
	env.actor = lecturer()
	env.seedProposal(t, workflow.StateDraft)

	w := env.do(t, http.MethodGet, "/api/v1/proposals/p1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data service.ProposalView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "p1", resp.Data.Proposal.ID)
	assert.Contains(t, resp.Data.AvailableActions, workflow.ActionSubmit)
}

func TestListProposals_Endpoint(t *testing.T) {
	env := newTestEnv(t)
	env.actor = lecturer()
	env.seedProposal(t, workflow.StateDraft)

	w := env.do(t, http.MethodGet, "/api/v1/proposals?page=1&page_size=10", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []service.ProposalView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
}

func TestGetLogs_Endpoint(t *testing.T) {
	env := newTestEnv(t)
	env.actor = lecturer()
	env.seedProposal(t, workflow.StateDraft)

	w := env.do(t, http.MethodPost, "/api/v1/workflow/p1/submit", nil,
		map[string]string{"Idempotency-Key": "k1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/proposals/p1/logs", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []model.WorkflowLogModel `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "SUBMIT", resp.Data[0].Action)
}

func TestVerifyProposal_Endpoint(t *testing.T) {
	env := newTestEnv(t)
	env.actor = lecturer()
	env.seedProposal(t, workflow.StateDraft)

	// 讲师无权触发校验
	w := env.do(t, http.MethodGet, "/api/v1/proposals/p1/verify", nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	env.actor = workflow.Actor{ID: "khcn-1", Role: workflow.RolePhongKHCN}
	w = env.do(t, http.MethodGet, "/api/v1/proposals/p1/verify", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Consistent bool        `json:"consistent"`
			Issue      interface{} `json:"issue"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Data.Consistent)
	assert.Nil(t, resp.Data.Issue)

	w = env.do(t, http.MethodGet, "/api/v1/proposals/missing/verify", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAggregate_RequiresCouncilRole(t *testing.T) {
	env := newTestEnv(t)
	env.actor = lecturer()
	env.seedProposal(t, workflow.StateOutlineCouncilReview)

	w := env.do(t, http.MethodGet, "/api/v1/evaluations/p1", nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
