package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/chirp/internal/model"
)

// TestWriteErrorResponse_WritesUnifiedFormat は統一エラーフォーマットでレスポンスが書き込まれることを検証する。
func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	w := httptest.NewRecorder()

	apiErr := &model.APIError{
		Code:     "TEST_ERROR",
		Message:  "テストエラーです。",
		Category: "validation",
		Action:   "正しい値を入力してください。",
	}

	WriteErrorResponse(w, http.StatusBadRequest, apiErr)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}

	if body.Code != "TEST_ERROR" {
		t.Errorf("code = %q, want %q", body.Code, "TEST_ERROR")
	}
	if body.Message != "テストエラーです。" {
		t.Errorf("message = %q, want %q", body.Message, "テストエラーです。")
	}
	if body.Category != "validation" {
		t.Errorf("category = %q, want %q", body.Category, "validation")
	}
	if body.Action != "正しい値を入力してください。" {
		t.Errorf("action = %q, want %q", body.Action, "正しい値を入力してください。")
	}
}

// TestWriteErrorResponse_DifferentStatusCodes は異なるステータスコードで正しく動作することを検証する。
func TestWriteErrorResponse_DifferentStatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		code       string
		category   string
	}{
		{"Unauthorized", http.StatusUnauthorized, "UNAUTHORIZED", "auth"},
		{"ServiceUnavailable", http.StatusServiceUnavailable, "FEED_UNAVAILABLE", "feed"},
		{"NotFound", http.StatusNotFound, "POST_NOT_FOUND", "feed"},
		{"Conflict", http.StatusConflict, "DUPLICATE_USERNAME", "validation"},
		{"Internal", http.StatusInternalServerError, "INTERNAL_ERROR", "system"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			WriteErrorResponse(w, tt.statusCode, &model.APIError{
				Code:     tt.code,
				Message:  "test",
				Category: tt.category,
				Action:   "test action",
			})

			resp := w.Result()
			if resp.StatusCode != tt.statusCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.statusCode)
			}

			var body ErrorResponseBody
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}

			if body.Code != tt.code {
				t.Errorf("code = %q, want %q", body.Code, tt.code)
			}
			if body.Category != tt.category {
				t.Errorf("category = %q, want %q", body.Category, tt.category)
			}
		})
	}
}

// TestInternalServerError_ReturnsSystemError は内部エラーが統一フォーマットで返ることを検証する。
func TestInternalServerError_ReturnsSystemError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w)

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}

	if body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want %q", body.Code, "INTERNAL_ERROR")
	}
	if body.Category != "system" {
		t.Errorf("category = %q, want %q", body.Category, "system")
	}
	if body.Action == "" {
		t.Error("action should not be empty")
	}
}

// TestStatusForError_MapsCodesToStatus はエラーコードごとのステータスコード対応を検証する。
func TestStatusForError_MapsCodesToStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{model.ErrCodeInvalidArgument, http.StatusBadRequest},
		{model.ErrCodeTextTooLong, http.StatusBadRequest},
		{model.ErrCodeAuthFailed, http.StatusUnauthorized},
		{model.ErrCodeAccountNotFound, http.StatusNotFound},
		{model.ErrCodePostNotFound, http.StatusNotFound},
		{model.ErrCodeDuplicateEmail, http.StatusConflict},
		{model.ErrCodeDuplicateUsername, http.StatusConflict},
		{model.ErrCodeFeedUnavailable, http.StatusServiceUnavailable},
		{model.ErrCodeMutationFailed, http.StatusInternalServerError},
		{model.ErrCodeFollowPartialFail, http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got := StatusForError(&model.APIError{Code: tt.code})
			if got != tt.want {
				t.Errorf("StatusForError(%s) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

// TestStatusForError_FallsBackToCategory は未知コードがカテゴリで判定されることを検証する。
func TestStatusForError_FallsBackToCategory(t *testing.T) {
	tests := []struct {
		name     string
		category string
		want     int
	}{
		{"validation", "validation", http.StatusBadRequest},
		{"auth", "auth", http.StatusUnauthorized},
		{"unknown", "system", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StatusForError(&model.APIError{Code: "UNKNOWN_CODE", Category: tt.category})
			if got != tt.want {
				t.Errorf("StatusForError(category=%s) = %d, want %d", tt.category, got, tt.want)
			}
		})
	}
}

// TestWriteAPIError_WritesMappedStatus はAPIErrorが対応するステータスで書き込まれることを検証する。
func TestWriteAPIError_WritesMappedStatus(t *testing.T) {
	w := httptest.NewRecorder()

	WriteAPIError(w, model.NewPostNotFoundError("post-1"))

	resp := w.Result()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != model.ErrCodePostNotFound {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodePostNotFound)
	}
}

// TestWriteAPIError_NonAPIErrorBecomesInternal はAPIError以外が500として隠蔽されることを検証する。
func TestWriteAPIError_NonAPIErrorBecomesInternal(t *testing.T) {
	w := httptest.NewRecorder()

	WriteAPIError(w, errors.New("connection refused"))

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want %q", body.Code, "INTERNAL_ERROR")
	}
	if strings.Contains(body.Message, "connection refused") {
		t.Error("internal error details should not leak into the response")
	}
}

// TestErrorResponseBody_AllFieldsPresent は全フィールドがJSONレスポンスに含まれることを検証する。
func TestErrorResponseBody_AllFieldsPresent(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "CODE",
		Message:  "MSG",
		Category: "CAT",
		Action:   "ACT",
	})

	var raw map[string]interface{}
	if err := json.NewDecoder(w.Result().Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}

	requiredFields := []string{"code", "message", "category", "action"}
	for _, field := range requiredFields {
		if _, ok := raw[field]; !ok {
			t.Errorf("missing required field: %s", field)
		}
	}
}
