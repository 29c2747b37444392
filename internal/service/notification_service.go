package service

import (
	"context"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"

	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/pkg/api"
)

// NotificationService implements splitledger.v1.NotificationService over the
// notifications persisted by the event dispatcher.
type NotificationService struct {
	store storage.NotificationStore
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(store storage.NotificationStore) *NotificationService {
	return &NotificationService{store: store}
}

// ListNotifications returns the caller's notifications, newest first.
func (s *NotificationService) ListNotifications(ctx context.Context, req *connect.Request[api.ListNotificationsRequest]) (*connect.Response[api.ListNotificationsResponse], error) {
	memberID, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := check(req.Msg); err != nil {
		return nil, err
	}

	items, err := s.store.ListNotifications(ctx, memberID, req.Msg.Limit)
	if err != nil {
		return nil, toConnectError(err)
	}
	out := make([]api.Notification, len(items))
	for i, n := range items {
		out[i] = toAPINotification(n)
	}
	return connect.NewResponse(&api.ListNotificationsResponse{Notifications: out}), nil
}

// MarkNotificationRead marks one of the caller's notifications read.
func (s *NotificationService) MarkNotificationRead(ctx context.Context, req *connect.Request[api.MarkNotificationReadRequest]) (*connect.Response[api.MarkReadResponse], error) {
	memberID, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := check(req.Msg); err != nil {
		return nil, err
	}
	if err := s.store.MarkNotificationRead(ctx, memberID, req.Msg.NotificationID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.MarkReadResponse{}), nil
}

// MarkAllNotificationsRead marks every notification of the caller read.
func (s *NotificationService) MarkAllNotificationsRead(ctx context.Context, _ *connect.Request[api.MarkAllNotificationsReadRequest]) (*connect.Response[api.MarkReadResponse], error) {
	memberID, err := actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkAllNotificationsRead(ctx, memberID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.MarkReadResponse{}), nil
}

// RegisterNotificationService registers every procedure of svc on r.
func RegisterNotificationService(r chi.Router, svc *NotificationService, opts ...connect.HandlerOption) {
	opts = append([]connect.HandlerOption{api.WithCodec()}, opts...)
	r.Handle(api.NotificationServiceListNotificationsProcedure, connect.NewUnaryHandler(api.NotificationServiceListNotificationsProcedure, svc.ListNotifications, opts...))
	r.Handle(api.NotificationServiceMarkNotificationReadProcedure, connect.NewUnaryHandler(api.NotificationServiceMarkNotificationReadProcedure, svc.MarkNotificationRead, opts...))
	r.Handle(api.NotificationServiceMarkAllNotificationsReadProcedure, connect.NewUnaryHandler(api.NotificationServiceMarkAllNotificationsReadProcedure, svc.MarkAllNotificationsRead, opts...))
}
