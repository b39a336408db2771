// Package mocks holds testify mocks for the collaborators of the inbox controller.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/vdavid/fieldinbox/internal/inbox"
	"github.com/vdavid/fieldinbox/internal/models"
)

type cleanupT interface {
	mock.TestingT
	Cleanup(func())
}

// ListQuerier mocks inbox.ListQuerier.
type ListQuerier struct {
	mock.Mock
}

// NewListQuerier creates a ListQuerier whose expectations are asserted on cleanup.
func NewListQuerier(t cleanupT) *ListQuerier {
	m := &ListQuerier{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *ListQuerier) ListCommunications(ctx context.Context, companyID string, q inbox.ListQuery) ([]*models.Communication, error) {
	ret := m.Called(ctx, companyID, q)
	var items []*models.Communication
	if v := ret.Get(0); v != nil {
		items = v.([]*models.Communication)
	}
	return items, ret.Error(1)
}

// EmailContentFetcher mocks inbox.EmailContentFetcher.
type EmailContentFetcher struct {
	mock.Mock
}

// NewEmailContentFetcher creates an EmailContentFetcher whose expectations are asserted on cleanup.
func NewEmailContentFetcher(t cleanupT) *EmailContentFetcher {
	m := &EmailContentFetcher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *EmailContentFetcher) FetchEmailContent(ctx context.Context, companyID, communicationID string) (*models.EmailContent, error) {
	ret := m.Called(ctx, companyID, communicationID)
	var content *models.EmailContent
	if v := ret.Get(0); v != nil {
		content = v.(*models.EmailContent)
	}
	return content, ret.Error(1)
}

// SMSConversationFetcher mocks inbox.SMSConversationFetcher.
type SMSConversationFetcher struct {
	mock.Mock
}

// NewSMSConversationFetcher creates an SMSConversationFetcher whose expectations are asserted on cleanup.
func NewSMSConversationFetcher(t cleanupT) *SMSConversationFetcher {
	m := &SMSConversationFetcher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *SMSConversationFetcher) FetchSMSConversation(ctx context.Context, companyID, phone string) ([]models.SMSMessage, error) {
	ret := m.Called(ctx, companyID, phone)
	var messages []models.SMSMessage
	if v := ret.Get(0); v != nil {
		messages = v.([]models.SMSMessage)
	}
	return messages, ret.Error(1)
}

// ChannelFetcher mocks inbox.ChannelFetcher.
type ChannelFetcher struct {
	mock.Mock
}

// NewChannelFetcher creates a ChannelFetcher whose expectations are asserted on cleanup.
func NewChannelFetcher(t cleanupT) *ChannelFetcher {
	m := &ChannelFetcher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *ChannelFetcher) FetchChannelMessages(ctx context.Context, companyID, channelID, viewerID string, page inbox.Page, search string) ([]models.ChannelMessage, error) {
	ret := m.Called(ctx, companyID, channelID, viewerID, page, search)
	var messages []models.ChannelMessage
	if v := ret.Get(0); v != nil {
		messages = v.([]models.ChannelMessage)
	}
	return messages, ret.Error(1)
}

func (m *ChannelFetcher) FetchChannelMessage(ctx context.Context, companyID, messageID, viewerID string) (*models.ChannelMessage, error) {
	ret := m.Called(ctx, companyID, messageID, viewerID)
	var msg *models.ChannelMessage
	if v := ret.Get(0); v != nil {
		msg = v.(*models.ChannelMessage)
	}
	return msg, ret.Error(1)
}

// Subscriber mocks inbox.Subscriber.
type Subscriber struct {
	mock.Mock
}

// NewSubscriber creates a Subscriber whose expectations are asserted on cleanup.
func NewSubscriber(t cleanupT) *Subscriber {
	m := &Subscriber{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *Subscriber) Subscribe(companyID, name, table string, handler func(models.RowInsert)) (inbox.Subscription, error) {
	ret := m.Called(companyID, name, table, handler)
	var sub inbox.Subscription
	if v := ret.Get(0); v != nil {
		sub = v.(inbox.Subscription)
	}
	return sub, ret.Error(1)
}

// Subscription mocks inbox.Subscription.
type Subscription struct {
	mock.Mock
}

// NewSubscription creates a Subscription whose expectations are asserted on cleanup.
func NewSubscription(t cleanupT) *Subscription {
	m := &Subscription{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *Subscription) Close() error {
	return m.Called().Error(0)
}
