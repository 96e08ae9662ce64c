package errors

import (
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
)

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, ErrCodeOK},
		{"geo error", CorruptedData("bad block", io.ErrUnexpectedEOF), ErrCodeCorruptedData},
		{"wrapped", fmt.Errorf("load cell: %w", CorruptedData("bad block", nil)), ErrCodeCorruptedData},
		{"plain", io.EOF, ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetCode(tt.err))
		})
	}
}

func TestGeoError_Mappings(t *testing.T) {
	tests := []struct {
		err      *GeoError
		httpCode int
		grpcCode codes.Code
	}{
		{InvalidCoordinate(91, 0, "latitude out of range"), http.StatusBadRequest, codes.InvalidArgument},
		{BatchTooLarge(2000, 1000), http.StatusBadRequest, codes.ResourceExhausted},
		{NoMatch(0, 0), http.StatusNotFound, codes.NotFound},
		{NotInitialized("disabled"), http.StatusServiceUnavailable, codes.Unavailable},
		{CorruptedData("truncated", nil), http.StatusInternalServerError, codes.DataLoss},
	}

	for _, tt := range tests {
		t.Run(tt.err.Message, func(t *testing.T) {
			assert.Equal(t, tt.httpCode, tt.err.HTTPStatus())
			assert.Equal(t, tt.grpcCode, tt.err.ToGRPCStatus().Code())
		})
	}
}

func TestGeoError_UnwrapAndDetails(t *testing.T) {
	err := CorruptedData("decompress cell", io.ErrUnexpectedEOF).WithDetail("geohash", "u09t")

	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, "u09t", err.Details["geohash"])
	assert.Contains(t, err.Error(), "decompress cell")
	assert.True(t, IsGeoError(fmt.Errorf("outer: %w", err)))
	assert.True(t, IsCorrupted(err))
}

func TestErrorCode_String(t *testing.T) {
	assert.Equal(t, "no_match", ErrCodeNoMatch.String())
	assert.Equal(t, "corrupted_data", ErrCodeCorruptedData.String())
	assert.Equal(t, "code_42", ErrorCode(42).String())
}
