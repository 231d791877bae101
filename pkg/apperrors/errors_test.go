package apperrors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	wrapped := fmt.Errorf("borrow: %w", Business(NoCopiesAvailable, "item %d", 7))

	assert.True(t, IsBusiness(wrapped))
	assert.True(t, HasCode(wrapped, NoCopiesAvailable))
	assert.False(t, HasCode(wrapped, ItemNotFound))
	assert.False(t, IsDataAccess(wrapped))
	assert.Equal(t, "borrow: NoCopiesAvailable: item 7", wrapped.Error())

	assert.True(t, IsValidation(Validation("title", "is required")))
	assert.True(t, IsAuthentication(Authentication("bad password")))
	assert.EqualError(t, Validation("", "nil item"), "validation failed: nil item")
}

func TestBusinessNotFound(t *testing.T) {
	tests := []struct {
		code     Code
		notFound bool
	}{
		{UserNotFound, true},
		{ItemNotFound, true},
		{LoanNotFound, true},
		{ReservationNotFound, true},
		{FineNotFound, true},
		{NoCopiesAvailable, false},
		{LoanAlreadyReturned, false},
		{ReservationNotActive, false},
		{FineAlreadyPaid, false},
	}
	for _, tt := range tests {
		err := &BusinessError{Code: tt.code}
		assert.Equal(t, tt.notFound, err.NotFound(), string(tt.code))
	}
}

func TestDataAccessUnwraps(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := DataAccess("find user", cause)

	assert.ErrorIs(t, err, cause)
	assert.EqualError(t, err, "data access: find user: connection reset")
	assert.EqualError(t, DataAccess("ping", nil), "data access: ping")
}
