package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"gorm.io/gorm"
)

func TestFrom(t *testing.T) {
	cases := []struct {
		err  error
		kind Kind
	}{
		{Forbidden("nope"), KindForbidden},
		{fmt.Errorf("wrapped: %w", Validation("bad")), KindValidation},
		{gorm.ErrRecordNotFound, KindNotFound},
		{fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), KindConflict},
		{context.DeadlineExceeded, KindTimeout},
		{errors.New("disk on fire"), KindInternal},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.kind {
			t.Fatalf("KindOf(%v) = %q, want %q", tc.err, got, tc.kind)
		}
	}
}

func TestInternalHidesDetail(t *testing.T) {
	e := From(errors.New("pq: relation does not exist"))
	if e.Error() != "internal error" {
		t.Fatalf("internal error leaked detail: %q", e.Error())
	}
	if HTTPStatus(e.Kind) != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", HTTPStatus(e.Kind))
	}
}
