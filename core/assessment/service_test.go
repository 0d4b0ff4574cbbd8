package assessment

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
)

// tokenRepo answers the token code checks from scripted results; every other method panics.
type tokenRepo struct {
	Repository

	taken      map[string]bool
	existsSeq  []bool  // results of TokenCodeExists, then false
	createSeq  []error // results of CreateToken, then nil
	existCalls int
	createCall int
	checked    []string
}

func (r *tokenRepo) TokenCodeExists(_ context.Context, code string, _ ...core.DBExecutor) (bool, error) {
	r.checked = append(r.checked, code)
	defer func() { r.existCalls++ }()
	if r.taken[code] {
		return true, nil
	}
	if r.existCalls < len(r.existsSeq) {
		return r.existsSeq[r.existCalls], nil
	}
	return false, nil
}

func (r *tokenRepo) CreateToken(_ context.Context, t Token, _ ...core.DBExecutor) (Token, error) {
	defer func() { r.createCall++ }()
	if r.createCall < len(r.createSeq) && r.createSeq[r.createCall] != nil {
		return Token{}, r.createSeq[r.createCall]
	}
	t.ID = "tok-" + t.Code
	return t, nil
}

func repeatBool(v bool, n int) []bool {
	s := make([]bool, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func repeatErr(err error, n int) []error {
	s := make([]error, n)
	for i := range s {
		s[i] = err
	}
	return s
}

func TestService_issueToken(t *testing.T) {
	ctx := context.Background()
	dbErr := errors.New("connection reset")

	tests := []struct {
		name            string
		repo            *tokenRepo
		wantErr         error
		wantExistCalls  int
		wantCreateCalls int
		wantCollisions  float64
	}{
		{
			name:            "first code is free",
			repo:            &tokenRepo{},
			wantExistCalls:  1,
			wantCreateCalls: 1,
		},
		{
			name:            "taken codes are skipped before insertion",
			repo:            &tokenRepo{existsSeq: []bool{true, true}},
			wantExistCalls:  3,
			wantCreateCalls: 1,
			wantCollisions:  2,
		},
		{
			name:            "unique violation on insertion is retried",
			repo:            &tokenRepo{createSeq: []error{errors.Wrap(ErrTokenExists, "inserting token")}},
			wantExistCalls:  2,
			wantCreateCalls: 2,
			wantCollisions:  1,
		},
		{
			name:            "gives up when every code is taken",
			repo:            &tokenRepo{existsSeq: repeatBool(true, maxTokenAttempts)},
			wantErr:         ErrTokenSpace,
			wantExistCalls:  maxTokenAttempts,
			wantCollisions:  maxTokenAttempts,
		},
		{
			name:            "gives up when every insertion collides",
			repo:            &tokenRepo{createSeq: repeatErr(ErrTokenExists, maxTokenAttempts)},
			wantErr:         ErrTokenSpace,
			wantExistCalls:  maxTokenAttempts,
			wantCreateCalls: maxTokenAttempts,
			wantCollisions:  maxTokenAttempts,
		},
		{
			name:            "other insertion errors are not retried",
			repo:            &tokenRepo{createSeq: []error{dbErr}},
			wantErr:         dbErr,
			wantExistCalls:  1,
			wantCreateCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &Service{repo: tt.repo, tokenLength: 8}
			before := promtest.ToFloat64(tokenCollisions)

			tok, err := svc.issueToken(ctx, nil, Token{AssessmentID: "a-1", StudentID: "s-1"})

			assert.Equal(t, tt.wantExistCalls, tt.repo.existCalls)
			assert.Equal(t, tt.wantCreateCalls, tt.repo.createCall)
			assert.Equal(t, tt.wantCollisions, promtest.ToFloat64(tokenCollisions)-before)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "a-1", tok.AssessmentID)
			assert.Equal(t, "s-1", tok.StudentID)
			assert.Len(t, tok.Code, 8)
			for _, r := range tok.Code {
				assert.True(t, strings.ContainsRune(core.UnambiguousAlphabet, r), "unexpected rune %q", r)
			}
			// the inserted code is the last one checked
			assert.Equal(t, tt.repo.checked[len(tt.repo.checked)-1], tok.Code)
		})
	}
}

func TestService_issueToken_seededCodes(t *testing.T) {
	ctx := context.Background()
	repo := &tokenRepo{taken: make(map[string]bool)}
	svc := &Service{repo: repo, tokenLength: 4}

	issued := make(map[string]bool)
	for i := 0; i < 50; i++ {
		tok, err := svc.issueToken(ctx, nil, Token{AssessmentID: "a-1"})
		require.NoError(t, err)
		assert.False(t, issued[tok.Code], "code %s issued twice", tok.Code)
		issued[tok.Code] = true
		repo.taken[tok.Code] = true
	}
}
