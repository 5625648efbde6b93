package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := NotFoundError("workspace %s not found", "ws-1")
	wrapped := fmt.Errorf("get workspace: %w", err)

	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.False(t, errors.Is(wrapped, ErrPermissionDenied))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.Equal(t, "workspace ws-1 not found", err.Error())
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.New("duplicate key")
	err := ConflictError("invite code collision", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "invite code collision: duplicate key", err.Error())
}

func TestKindOf_UntypedError(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("boom")))
	_, ok := AsError(errors.New("boom"))
	assert.False(t, ok)
}

func TestCreateWorkspaceRequest_Validate(t *testing.T) {
	t.Run("trims and accepts", func(t *testing.T) {
		req := CreateWorkspaceRequest{Name: "  Acme  "}
		require.NoError(t, req.Validate())
		assert.Equal(t, "Acme", req.Name)
	})

	t.Run("blank name", func(t *testing.T) {
		req := CreateWorkspaceRequest{Name: "   "}
		err := req.Validate()
		require.Error(t, err)
		e, ok := AsError(err)
		require.True(t, ok)
		assert.Equal(t, KindValidation, e.Kind)
		assert.Equal(t, "required", e.Fields["name"])
	})

	t.Run("name too long", func(t *testing.T) {
		req := CreateWorkspaceRequest{Name: strings.Repeat("a", 256)}
		err := req.Validate()
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("description too long", func(t *testing.T) {
		desc := strings.Repeat("d", 1001)
		req := CreateWorkspaceRequest{Name: "Acme", Description: &desc}
		err := req.Validate()
		e, ok := AsError(err)
		require.True(t, ok)
		assert.Equal(t, "max", e.Fields["description"])
	})
}

func TestChangeRoleRequest_Validate(t *testing.T) {
	ok := ChangeRoleRequest{Role: RoleAdmin}
	assert.NoError(t, ok.Validate())

	bad := ChangeRoleRequest{Role: Role("superuser")}
	assert.ErrorIs(t, bad.Validate(), ErrValidation)

	empty := ChangeRoleRequest{}
	assert.ErrorIs(t, empty.Validate(), ErrValidation)
}

func TestCreateTaskRequest_Validate(t *testing.T) {
	bad := TaskStatus("CANCELLED")
	req := CreateTaskRequest{Title: "Ship it", Status: &bad}
	err := req.Validate()
	e, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "oneof", e.Fields["status"])

	blank := "  "
	good := CreateTaskRequest{Title: " Ship it ", AssignedTo: &blank}
	require.NoError(t, good.Validate())
	assert.Equal(t, "Ship it", good.Title)
	assert.Nil(t, good.AssignedTo)
}

func TestListTasksParams_Normalize(t *testing.T) {
	kw := "   "
	p := ListTasksParams{WorkspaceID: "ws", Limit: 500, Offset: -3, Keyword: &kw}
	p.Normalize()
	assert.Equal(t, 50, p.Limit)
	assert.Equal(t, 0, p.Offset)
	assert.Nil(t, p.Keyword)

	status := TaskStatus("WHATEVER")
	p.Status = &status
	assert.ErrorIs(t, p.Validate(), ErrValidation)
}
