package api

import "grid-optimizer/internal/models"

// BacktestRequest 是 POST /api/v1/backtest 的请求体
type BacktestRequest struct {
	Trades []models.TradeEvent            `json:"trades" binding:"required"`
	Params models.ParameterConfiguration `json:"params"`
}

// BacktestResponse 是单次回测的结果，没有成交时 metrics 为 null
type BacktestResponse struct {
	Metrics *models.Metrics      `json:"metrics"`
	Trades  int                  `json:"trades"`
	Ladder  []float64            `json:"ladder"`
	State   BacktestStateSummary `json:"state"`
}

// BacktestStateSummary 概括回测结束时的账户状态
type BacktestStateSummary struct {
	Cash         float64 `json:"cash"`
	OpenQuantity int     `json:"open_quantity"`
	Positions    []int   `json:"positions"`
}

// OptimizeRequest 是 POST /api/v1/optimize 的请求体，time_frame 为空时自动推断
type OptimizeRequest struct {
	Symbol    string              `json:"symbol"`
	TimeFrame string              `json:"time_frame"`
	Trades    []models.TradeEvent `json:"trades" binding:"required"`
}

// ErrorResponse 统一的错误返回格式
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail 错误详情
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
