package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/postdeck/internal/model"
)

// ErrorResponseBody は運用エンドポイント（/health など）のエラーレスポンス形式。
// Retryableは監視側が再試行で回復しうる失敗かを判断するために使う。
type ErrorResponseBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Category  string `json:"category"`
	Action    string `json:"action"`
	Retryable bool   `json:"retryable"`
}

// WriteErrorResponse はmodel.APIErrorをJSONのエラーレスポンスとして書き込む。
// 原因のエラー（apiErr.Err）は含めない。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		Category:  apiErr.Category,
		Action:    apiErr.Action,
		Retryable: apiErr.Retryable(),
	})
}

// WriteInternalServerError はpanicなど想定外の失敗に対する500レスポンスを書き込む。
// 詳細はログのみに記録する。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
