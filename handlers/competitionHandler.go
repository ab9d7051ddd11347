package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"rpsserver/middlewares"
	"rpsserver/models"
	"rpsserver/registry"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MaxPageSize は一覧取得で指定できる最大件数
const MaxPageSize = 100

const defaultPageSize = 20

// CreateRequest は競技作成リクエストのボディを表す構造体です。
type CreateRequest struct {
	ID         string              `json:"id"`
	Commitment registry.Commitment `json:"commitment"` // keccak256(手 ‖ salt)
	Stake      uint64              `json:"stake"`
}

type EntryRequest struct {
	Hand  *models.Hand `json:"hand" binding:"required"`
	Stake uint64       `json:"stake"`
}

type JudgeRequest struct {
	Hand *models.Hand `json:"hand" binding:"required"`
	Salt string       `json:"salt"`
}

// errorStatus はレジストリのエラーをHTTPステータスに変換する
func errorStatus(err error) int {
	switch {
	case errors.Is(err, registry.ErrCompetitionNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrCompetitionExists),
		errors.Is(err, registry.ErrPhase),
		errors.Is(err, registry.ErrUnreachedTimestamp):
		return http.StatusConflict
	case errors.Is(err, registry.ErrInvalidDeposit),
		errors.Is(err, registry.ErrInvalidHash),
		errors.Is(err, registry.ErrInvalidHand),
		errors.Is(err, registry.ErrInvalidID),
		errors.Is(err, registry.ErrMissingCaller):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error("Registry operation failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func bindJSON(c *gin.Context, logger *zap.Logger, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		logger.Warn("Request binding error", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request binding error"})
		return false
	}
	return true
}

// CreateCompetition は賭け金を預けて新しい競技を作成します
func CreateCompetition(c *gin.Context, reg *registry.Registry, logger *zap.Logger) {
	var req CreateRequest
	if !bindJSON(c, logger, &req) {
		return
	}
	if req.Commitment == (registry.Commitment{}) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "commitment is required"})
		return
	}

	competition, err := reg.Create(c.Request.Context(), middlewares.Caller(c), req.ID, req.Commitment, req.Stake)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusCreated, competition)
}

// EnterCompetition は対戦相手として参加します。賭け金はホストと同額である必要がある
func EnterCompetition(c *gin.Context, reg *registry.Registry, logger *zap.Logger) {
	var req EntryRequest
	if !bindJSON(c, logger, &req) {
		return
	}
	competition, err := reg.Entry(c.Request.Context(), middlewares.Caller(c), c.Param("id"), *req.Hand, req.Stake)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, competition)
}

// JudgeCompetition はホストの手とsaltを公開して勝敗を確定します
func JudgeCompetition(c *gin.Context, reg *registry.Registry, logger *zap.Logger) {
	var req JudgeRequest
	if !bindJSON(c, logger, &req) {
		return
	}
	competition, err := reg.Judge(c.Request.Context(), middlewares.Caller(c), c.Param("id"), *req.Hand, req.Salt)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, competition)
}

func CloseCompetition(c *gin.Context, reg *registry.Registry, logger *zap.Logger) {
	competition, err := reg.Close(c.Request.Context(), middlewares.Caller(c), c.Param("id"))
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, competition)
}

func ForceCloseCompetition(c *gin.Context, reg *registry.Registry, logger *zap.Logger) {
	competition, err := reg.ForceClose(c.Request.Context(), middlewares.Caller(c), c.Param("id"))
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, competition)
}

// ListCompetitions は作成順に page*size 番目から最大 size 件を返す
func ListCompetitions(c *gin.Context, reg *registry.Registry, logger *zap.Logger) {
	page, err := strconv.ParseUint(c.DefaultQuery("page", "0"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid page"})
		return
	}
	size, err := strconv.ParseUint(c.DefaultQuery("size", strconv.Itoa(defaultPageSize)), 10, 64)
	if err != nil || size > MaxPageSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid size"})
		return
	}

	competitions, err := reg.GetCompetitions(c.Request.Context(), page, size)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"page":         page,
		"size":         size,
		"competitions": competitions,
	})
}

func GetCompetition(c *gin.Context, reg *registry.Registry, logger *zap.Logger) {
	competition, err := reg.GetCompetition(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, competition)
}
