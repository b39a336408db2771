package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/vdavid/fieldinbox/internal/models"
)

// Mutator mocks inbox.Mutator.
type Mutator struct {
	mock.Mock
}

// NewMutator creates a Mutator whose expectations are asserted on cleanup.
func NewMutator(t cleanupT) *Mutator {
	m := &Mutator{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *Mutator) Archive(ctx context.Context, companyID, id string) error {
	return m.Called(ctx, companyID, id).Error(0)
}

func (m *Mutator) ToggleStar(ctx context.Context, companyID, id string, starred bool) error {
	return m.Called(ctx, companyID, id, starred).Error(0)
}

func (m *Mutator) ToggleSpam(ctx context.Context, companyID, id string) (models.Status, error) {
	ret := m.Called(ctx, companyID, id)
	var status models.Status
	if v := ret.Get(0); v != nil {
		status = v.(models.Status)
	}
	return status, ret.Error(1)
}

func (m *Mutator) DeleteCommunications(ctx context.Context, companyID string, ids []string) error {
	return m.Called(ctx, companyID, ids).Error(0)
}

func (m *Mutator) RetryFailedSend(ctx context.Context, companyID, id string) error {
	return m.Called(ctx, companyID, id).Error(0)
}

func (m *Mutator) MarkRead(ctx context.Context, companyID string, commType models.CommunicationType, id string) error {
	return m.Called(ctx, companyID, commType, id).Error(0)
}

func (m *Mutator) MarkConversationRead(ctx context.Context, companyID, phone string) error {
	return m.Called(ctx, companyID, phone).Error(0)
}

func (m *Mutator) MarkChannelRead(ctx context.Context, companyID, channelID, memberID string) error {
	return m.Called(ctx, companyID, channelID, memberID).Error(0)
}

func (m *Mutator) SaveInternalNotes(ctx context.Context, companyID, id, notes, memberID string) (*models.NotesUpdate, error) {
	ret := m.Called(ctx, companyID, id, notes, memberID)
	var update *models.NotesUpdate
	if v := ret.Get(0); v != nil {
		update = v.(*models.NotesUpdate)
	}
	return update, ret.Error(1)
}

func (m *Mutator) Assign(ctx context.Context, companyID, id string, memberID *string) error {
	return m.Called(ctx, companyID, id, memberID).Error(0)
}

func (m *Mutator) SendSMS(ctx context.Context, companyID, memberID string, req models.SendSMSRequest) (*models.SMSMessage, error) {
	ret := m.Called(ctx, companyID, memberID, req)
	var msg *models.SMSMessage
	if v := ret.Get(0); v != nil {
		msg = v.(*models.SMSMessage)
	}
	return msg, ret.Error(1)
}

func (m *Mutator) SendChannelMessage(ctx context.Context, companyID, channelID, memberID, body string) (*models.ChannelMessage, error) {
	ret := m.Called(ctx, companyID, channelID, memberID, body)
	var msg *models.ChannelMessage
	if v := ret.Get(0); v != nil {
		msg = v.(*models.ChannelMessage)
	}
	return msg, ret.Error(1)
}
