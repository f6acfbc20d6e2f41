package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPaginationDefaultsAndCaps(t *testing.T) {
	var p PaginationRequest
	require.Equal(t, 20, p.GetPageSize())
	require.Equal(t, 0, p.GetOffset())

	p = PaginationRequest{Page: 3, PageSize: 10}
	require.Equal(t, 10, p.GetPageSize())
	require.Equal(t, 20, p.GetOffset())

	p = PaginationRequest{Page: 1, PageSize: 500}
	require.Equal(t, 100, p.GetPageSize())
}

func TestPaginationMetaTotalPages(t *testing.T) {
	meta := NewPaginationMeta(1, 20, 45)
	require.Equal(t, 3, meta.TotalPages)

	meta = NewPaginationMeta(1, 20, 0)
	require.Equal(t, 0, meta.TotalPages)

	meta = NewPaginationMeta(1, 20, 40)
	require.Equal(t, 2, meta.TotalPages)
}

func TestGetErrorMessage(t *testing.T) {
	require.Equal(t, "审批配置不存在", GetErrorMessage(CodeApprovalConfigNotFound))
	require.Equal(t, "未知错误", GetErrorMessage(99999))
}

func TestNewBusinessErrorDefaultsMessage(t *testing.T) {
	err := NewBusinessError(CodeApprovalForbidden, "")
	require.Equal(t, CodeApprovalForbidden, err.Code)
	require.Equal(t, GetErrorMessage(CodeApprovalForbidden), err.Error())

	err = NewBusinessError(CodeConflict, "mensagem própria")
	require.Equal(t, "mensagem própria", err.Error())
}
