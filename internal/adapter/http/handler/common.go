package handler

import (
	"strconv"

	"github.com/victoryunusa/truetab-api-sub000/internal/adapter/http/middleware"
	"github.com/victoryunusa/truetab-api-sub000/internal/core/domain"
	"github.com/victoryunusa/truetab-api-sub000/pkg/apperror"
	"github.com/victoryunusa/truetab-api-sub000/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// walletRef resolves the caller's wallet from its token. It writes the
// error response itself when there is none.
func walletRef(c *gin.Context) (domain.WalletRef, bool) {
	claims, ok := middleware.Claims(c)
	if !ok || claims.BrandID == uuid.Nil {
		response.Error(c, apperror.ErrInvalidToken())
		return domain.WalletRef{}, false
	}
	return claims.WalletRef(), true
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid id"))
		return uuid.Nil, false
	}
	return id, true
}

// pageRequest reads limit, offset and cursor. Bad numbers fall back to
// defaults rather than failing the request.
func pageRequest(c *gin.Context) domain.PageRequest {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return domain.PageRequest{Limit: limit, Offset: offset, Cursor: c.Query("cursor")}.Normalize()
}

// writeResult sends a 2xx for v after err, echoing duplicates with 200.
func writeResult(c *gin.Context, v any, err error, created bool) {
	switch {
	case err == nil && created:
		response.Created(c, v)
	case err == nil:
		response.OK(c, v)
	case apperror.Is(err, apperror.CodeDuplicateOperation) && v != nil:
		response.Duplicate(c, v)
	default:
		response.Error(c, err)
	}
}
