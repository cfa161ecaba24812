package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stock_radar/internal/app"
	"stock_radar/internal/database"
	"stock_radar/internal/models"
	"stock_radar/internal/service"
)

// Runner 对外暴露的操作
type Runner interface {
	Sync(ctx context.Context, lookbackDays int) (*service.SyncResult, error)
	Scan(ctx context.Context) (*service.ScanResult, error)
	Diagnose(ctx context.Context, tsCode string) (*service.Diagnosis, error)
	Info(ctx context.Context) (*app.Info, error)
	Reset(ctx context.Context) error
	Stocks(ctx context.Context, codes []string) ([]models.StockBasic, error)
	DailyBars(ctx context.Context, f database.QueryFilter) ([]models.DailyBar, error)
}

// Handler API 处理器
type Handler struct {
	runner Runner
	logger *zap.Logger
}

// NewHandler 创建处理器
func NewHandler(runner Runner, logger *zap.Logger) *Handler {
	return &Handler{
		runner: runner,
		logger: logger,
	}
}

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// SyncRequest 同步请求
type SyncRequest struct {
	LookbackDays int `json:"lookback_days" binding:"gte=0,lte=3650"`
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		// 健康检查
		api.GET("/health", h.HealthCheck)

		api.POST("/sync", h.Sync)
		api.POST("/scan", h.Scan)
		api.GET("/check/:ts_code", h.Check)
		api.GET("/info", h.Info)
		api.POST("/reset", h.Reset)

		// 本地数据查询
		data := api.Group("/data")
		{
			data.GET("/stocks", h.GetStocks)
			data.GET("/daily", h.GetDailyData)
			data.GET("/stock/:ts_code", h.GetStockInfo)
		}
	}
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "OK",
		Data: gin.H{
			"status": "healthy",
		},
	})
}

// Sync 增量同步
func (h *Handler) Sync(c *gin.Context) {
	var req SyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, Response{
				Code:    400,
				Message: "参数错误: " + err.Error(),
			})
			return
		}
	}

	h.logger.Info("收到同步请求", zap.Int("lookback_days", req.LookbackDays))

	result, err := h.runner.Sync(c.Request.Context(), req.LookbackDays)
	if err != nil {
		h.fail(c, "同步失败", err)
		return
	}

	message := "同步完成"
	if result.SuccessCount == 0 && result.FailCount == 0 && result.LastError != "" {
		message = result.LastError
	}
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: message,
		Data:    result,
	})
}

// Scan 选股
func (h *Handler) Scan(c *gin.Context) {
	h.logger.Info("收到选股请求")

	result, err := h.runner.Scan(c.Request.Context())
	if err != nil {
		h.fail(c, "选股失败", err)
		return
	}

	message := "success"
	if result.Message != "" {
		message = result.Message
	}
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: message,
		Data:    result,
	})
}

// Check 单只股票诊断
func (h *Handler) Check(c *gin.Context) {
	tsCode := strings.TrimSpace(c.Param("ts_code"))
	if tsCode == "" {
		c.JSON(http.StatusBadRequest, Response{
			Code:    400,
			Message: "股票代码不能为空",
		})
		return
	}

	d, err := h.runner.Diagnose(c.Request.Context(), tsCode)
	if err != nil {
		h.fail(c, "诊断失败", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    d,
	})
}

// Info 本地库概况
func (h *Handler) Info(c *gin.Context) {
	info, err := h.runner.Info(c.Request.Context())
	if err != nil {
		h.fail(c, "查询失败", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    info,
	})
}

// Reset 清空本地库
func (h *Handler) Reset(c *gin.Context) {
	h.logger.Warn("收到重置请求")

	if err := h.runner.Reset(c.Request.Context()); err != nil {
		h.fail(c, "重置失败", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "重置成功",
	})
}

// GetStocks 获取股票列表
func (h *Handler) GetStocks(c *gin.Context) {
	page, pageSize := pagination(c, 20)

	stocks, err := h.runner.Stocks(c.Request.Context(), nil)
	if err != nil {
		h.fail(c, "查询失败", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data: gin.H{
			"list":  paginate(stocks, page, pageSize),
			"total": len(stocks),
			"page":  page,
		},
	})
}

// GetDailyData 获取日线数据
func (h *Handler) GetDailyData(c *gin.Context) {
	page, pageSize := pagination(c, 100)

	f := database.QueryFilter{
		StartDate: c.Query("start_date"),
		EndDate:   c.Query("end_date"),
	}
	if tradeDate := c.Query("trade_date"); tradeDate != "" {
		f.StartDate, f.EndDate = tradeDate, tradeDate
	}
	if tsCode := c.Query("ts_code"); tsCode != "" {
		f.Codes = strings.Split(tsCode, ",")
	}

	bars, err := h.runner.DailyBars(c.Request.Context(), f)
	if err != nil {
		h.fail(c, "查询失败", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data: gin.H{
			"list":  paginate(bars, page, pageSize),
			"total": len(bars),
			"page":  page,
		},
	})
}

// GetStockInfo 获取股票详细信息
func (h *Handler) GetStockInfo(c *gin.Context) {
	tsCode := c.Param("ts_code")

	stocks, err := h.runner.Stocks(c.Request.Context(), []string{tsCode})
	if err != nil {
		h.fail(c, "查询失败", err)
		return
	}
	if len(stocks) == 0 {
		c.JSON(http.StatusNotFound, Response{
			Code:    404,
			Message: "股票不存在",
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    stocks[0],
	})
}

// fail 按错误类型返回状态码
func (h *Handler) fail(c *gin.Context, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrCalendarUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, service.ErrFetchFailed):
		status = http.StatusBadGateway
	case errors.Is(err, app.ErrClosed):
		status = http.StatusServiceUnavailable
	}

	h.logger.Error(msg, zap.Error(err))
	c.JSON(status, Response{
		Code:    status,
		Message: msg + ": " + err.Error(),
	})
}

func pagination(c *gin.Context, defaultSize int) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultSize)))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultSize
	}
	return page, pageSize
}

func paginate[T any](rows []T, page, pageSize int) []T {
	start := (page - 1) * pageSize
	if start >= len(rows) {
		return []T{}
	}
	end := start + pageSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}
