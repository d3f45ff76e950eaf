package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/grupoimpulso/seat-sales/internal/core/domain"
	"github.com/grupoimpulso/seat-sales/internal/core/service"
)

// JSONCodec carries gRPC messages as JSON under the "json" content-subtype.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSONCodec) Name() string                       { return "json" }

func init() {
	encoding.RegisterCodec(JSONCodec{})
}

type ReserveRequest struct {
	service.CheckoutRequest
}

type ReserveResponse struct {
	Success     bool         `json:"success"`
	Code        string       `json:"code,omitempty"`
	Message     string       `json:"message"`
	Details     []string     `json:"details,omitempty"`
	Sale        *domain.Sale `json:"sale,omitempty"`
	RedirectURL string       `json:"redirectUrl,omitempty"`
}

type ReportPaymentRequest struct {
	Method domain.PaymentMethod `json:"method"`
	service.PaymentOutcome
}

type ReportPaymentResponse struct {
	Success bool         `json:"success"`
	Code    string       `json:"code,omitempty"`
	Message string       `json:"message"`
	Details []string     `json:"details,omitempty"`
	Sale    *domain.Sale `json:"sale,omitempty"`
}

type SaleServiceServer interface {
	Reserve(context.Context, *ReserveRequest) (*ReserveResponse, error)
	ReportPayment(context.Context, *ReportPaymentRequest) (*ReportPaymentResponse, error)
}

// GRPCHandler serves seatsales.SaleService for internal callers such as the
// payment bridge. Business failures are reported in the response body.
type GRPCHandler struct {
	reservations *service.ReservationService
	sales        *service.SaleService
}

func NewGRPCHandler(reservations *service.ReservationService, sales *service.SaleService) *GRPCHandler {
	return &GRPCHandler{reservations: reservations, sales: sales}
}

func (h *GRPCHandler) Reserve(ctx context.Context, req *ReserveRequest) (*ReserveResponse, error) {
	res, err := h.reservations.Checkout(ctx, req.CheckoutRequest)
	if err != nil {
		f := classify(err)
		if f.code == "internal" {
			logrus.WithError(err).Error("grpc reserve failed")
		}
		return &ReserveResponse{
			Success: false,
			Code:    f.code,
			Message: f.message,
			Details: f.fields,
		}, nil
	}

	return &ReserveResponse{
		Success:     true,
		Message:     "seat reserved",
		Sale:        &res.Sale,
		RedirectURL: res.RedirectURL,
	}, nil
}

func (h *GRPCHandler) ReportPayment(ctx context.Context, req *ReportPaymentRequest) (*ReportPaymentResponse, error) {
	outcome := req.PaymentOutcome
	outcome.Method = req.Method

	sale, err := h.sales.ApplyPaymentOutcome(ctx, outcome)
	if err != nil {
		f := classify(err)
		if f.code == "internal" {
			logrus.WithError(err).Error("grpc report payment failed")
		}
		return &ReportPaymentResponse{
			Success: false,
			Code:    f.code,
			Message: f.message,
			Details: f.fields,
		}, nil
	}

	return &ReportPaymentResponse{
		Success: true,
		Message: "payment recorded",
		Sale:    sale,
	}, nil
}

const saleServiceName = "seatsales.SaleService"

var SaleServiceDesc = grpc.ServiceDesc{
	ServiceName: saleServiceName,
	HandlerType: (*SaleServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Reserve", Handler: reserveHandler},
		{MethodName: "ReportPayment", Handler: reportPaymentHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "seatsales",
}

func RegisterSaleServiceServer(s grpc.ServiceRegistrar, srv SaleServiceServer) {
	s.RegisterService(&SaleServiceDesc, srv)
}

func reserveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReserveRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SaleServiceServer).Reserve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + saleServiceName + "/Reserve"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SaleServiceServer).Reserve(ctx, req.(*ReserveRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func reportPaymentHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ReportPaymentRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SaleServiceServer).ReportPayment(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + saleServiceName + "/ReportPayment"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SaleServiceServer).ReportPayment(ctx, req.(*ReportPaymentRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// UnaryLogger logs every unary call with its duration and status code.
func UnaryLogger(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	entry := logrus.WithFields(logrus.Fields{
		"method":   info.FullMethod,
		"code":     status.Code(err).String(),
		"duration": time.Since(start),
	})
	if err != nil {
		entry.WithError(err).Error("grpc call failed")
	} else {
		entry.Info("grpc call processed")
	}
	return resp, err
}
