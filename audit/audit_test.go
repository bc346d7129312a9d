package audit

import (
	"testing"

	"github.com/sage-x-project/sage/pkg/storage"
	"github.com/stretchr/testify/assert"
)

func TestEventConstructors(t *testing.T) {
	cid := NewConnectionID()
	assert.NotEmpty(t, cid)

	up := Upload(storage.AuditSuccess, 1700000000000, cid)
	assert.Equal(t, storage.AuditUpload, up.Type)
	assert.Equal(t, storage.AuditSuccess, up.Status)
	assert.Equal(t, cid, up.ConnectionID)

	down := Download(storage.AuditFailure, 1700000000001, cid)
	assert.Equal(t, storage.AuditDownload, down.Type)

	del := Delete(storage.AuditSuccess, 1700000000002, cid)
	assert.Equal(t, storage.AuditDelete, del.Type)
}

func TestNewConnectionIDIsUnique(t *testing.T) {
	a := NewConnectionID()
	b := NewConnectionID()
	assert.NotEqual(t, a, b)
}
