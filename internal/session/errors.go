package session

import (
	"errors"

	"github.com/saltware-cloud/opsassistant/internal/qcli"
	"github.com/saltware-cloud/opsassistant/internal/report"
	"github.com/saltware-cloud/opsassistant/internal/screener"
)

// userMessage maps a workflow error to the one-line Korean message shown to
// the user. Internal detail stays in the log.
func userMessage(err error) string {
	switch {
	case errors.Is(err, screener.ErrTimeout):
		return "⏱️ 스캔이 제한 시간을 초과했습니다. 잠시 후 다시 시도해 주세요."
	case errors.Is(err, screener.ErrEmptyOutput):
		return "❌ 스캔 결과를 생성하지 못했습니다. 계정 권한을 확인해 주세요."
	case errors.Is(err, qcli.ErrExecutionTimeout):
		return "⏱️ 응답 생성이 제한 시간을 초과했습니다. 질문을 좁혀서 다시 시도해 주세요."
	case errors.Is(err, report.ErrInvalidTemplate):
		return "❌ 보고서 생성 중 내부 오류가 발생했습니다. 관리자에게 문의해 주세요."
	default:
		return "❌ 요청 처리 중 오류가 발생했습니다."
	}
}
