package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/shop-orders/internal/auth"
	grpcsvc "github.com/vladislavdragonenkov/shop-orders/internal/service/grpc"
)

const (
	idempotencyHeader = "idempotency-key"
	tokenTTL          = time.Hour
)

type loadMode string

const (
	modeCreate             loadMode = "create"
	modeCreateCancel       loadMode = "create-cancel"
	modeCreateCancelDelete loadMode = "create-cancel-delete"
)

type config struct {
	addr        string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	connections int
	timeout     time.Duration
	mode        loadMode
	cancelRate  int
	productID   string
	price       decimal.Decimal
	quantity    int
	jwtSecret   string
	customerTag string
	outputPath  string
}

// orderCaller реализуется grpcsvc.OrderServiceClient.
type orderCaller interface {
	Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

func parseConfig() (config, error) {
	var cfg config
	var modeValue string
	var timeoutValue string
	var durationValue string
	var priceValue string

	flag.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m, 15m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.IntVar(&cfg.connections, "connections", 20, "number of gRPC client connections")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-RPC timeout")
	flag.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | create-cancel | create-cancel-delete")
	flag.IntVar(&cfg.cancelRate, "cancel-rate", 0, "cancel probability in percent for create mode (0..100)")
	flag.StringVar(&cfg.productID, "product", "P1", "product id to order")
	flag.StringVar(&priceValue, "price", "10.00", "unit price sent with the order item")
	flag.IntVar(&cfg.quantity, "quantity", 1, "units per order")
	flag.StringVar(&cfg.jwtSecret, "jwt-secret", os.Getenv("OMS_JWT_SECRET"), "HMAC secret used to sign user and admin tokens")
	flag.StringVar(&cfg.customerTag, "customer-tag", "load", "user id prefix")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	price, err := decimal.NewFromString(strings.TrimSpace(priceValue))
	if err != nil {
		return cfg, fmt.Errorf("parse price: %w", err)
	}
	cfg.price = price

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.duration > 0 && cfg.totalSet && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.connections <= 0 {
		return cfg, errors.New("connections must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.price.IsNegative() {
		return cfg, errors.New("price must be >= 0")
	}
	if cfg.quantity <= 0 {
		return cfg, errors.New("quantity must be > 0")
	}
	if cfg.cancelRate < 0 || cfg.cancelRate > 100 {
		return cfg, errors.New("cancel-rate must be between 0 and 100")
	}
	if strings.TrimSpace(cfg.productID) == "" {
		return cfg, errors.New("product is required")
	}
	if strings.TrimSpace(cfg.jwtSecret) == "" {
		return cfg, errors.New("jwt-secret is required (flag or OMS_JWT_SECRET)")
	}
	if strings.TrimSpace(cfg.customerTag) == "" {
		return cfg, errors.New("customer-tag is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeCreate:
		return modeCreate, nil
	case modeCreateCancel:
		return modeCreateCancel, nil
	case modeCreateCancelDelete:
		return modeCreateCancelDelete, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	verifier, err := auth.NewVerifier(cfg.jwtSecret)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid jwt secret: %v\n", err)
		os.Exit(1)
	}
	signer, err := newTokenSigner(verifier, cfg.customerTag)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to sign admin token: %v\n", err)
		os.Exit(1)
	}

	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	clients := make([]orderCaller, 0, cfg.connections)
	for range cfg.connections {
		conn, dialErr := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to create grpc client connection: %v\n", dialErr)
			os.Exit(1)
		}
		conns = append(conns, conn)
		clients = append(clients, grpcsvc.NewOrderServiceClient(conn))
	}
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := range cfg.concurrency {
		wg.Add(1)
		client := clients[workerID%len(clients)]
		go func(cli orderCaller) {
			defer wg.Done()
			for id := range jobs {
				if runErr := runScenario(cli, signer, cfg, id, runID, col); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}(client)
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	duration := time.Since(startedAt)
	result := col.buildReport(startedAt, duration)
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := range cfg.total {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// tokenSigner выпускает токен пользователя на каждый сценарий и один админский токен на весь прогон.
type tokenSigner struct {
	verifier   *auth.Verifier
	adminToken string
}

func newTokenSigner(verifier *auth.Verifier, tag string) (*tokenSigner, error) {
	adminToken, err := verifier.Sign(auth.Identity{UserID: tag + "-admin", Role: auth.RoleAdmin}, tokenTTL)
	if err != nil {
		return nil, err
	}
	return &tokenSigner{verifier: verifier, adminToken: adminToken}, nil
}

func (s *tokenSigner) user(userID string) (string, error) {
	return s.verifier.Sign(auth.Identity{UserID: userID}, tokenTTL)
}

func runScenario(
	client orderCaller,
	signer *tokenSigner,
	cfg config,
	index int,
	runID string,
	col *collector,
) error {
	scenarioStart := time.Now()
	scenarioCode := codes.OK
	defer func() {
		col.record(scenarioMethod, time.Since(scenarioStart), scenarioCode)
	}()

	userToken, err := signer.user(fmt.Sprintf("%s-%s-%d", cfg.customerTag, runID, index))
	if err != nil {
		scenarioCode = codes.Unauthenticated
		return fmt.Errorf("sign user token: %w", err)
	}

	createReq, err := buildCreateRequest(cfg)
	if err != nil {
		scenarioCode = codes.InvalidArgument
		return err
	}

	createKey := fmt.Sprintf("lt-create-%s-%d", runID, index)
	orderResp, err := callCreateOrder(client, cfg.timeout, userToken, createReq, createKey, col)
	if err != nil {
		scenarioCode = grpcCode(err)
		return err
	}
	orderID := orderResp.GetFields()["_id"].GetStringValue()
	if orderID == "" {
		scenarioCode = codes.Internal
		return errors.New("create response returned empty order id")
	}

	cancel := cfg.mode != modeCreate || shouldCancelScenario(index, cfg.cancelRate)
	if !cancel {
		return nil
	}
	if err := callCancelOrder(client, cfg.timeout, signer.adminToken, orderID, col); err != nil {
		scenarioCode = grpcCode(err)
		return err
	}

	if cfg.mode == modeCreateCancelDelete {
		if err := callDeleteOrder(client, cfg.timeout, signer.adminToken, orderID, col); err != nil {
			scenarioCode = grpcCode(err)
			return err
		}
	}

	return nil
}

// buildCreateRequest собирает заказ из одной позиции с согласованными суммами.
func buildCreateRequest(cfg config) (*structpb.Struct, error) {
	subTotal := cfg.price.Mul(decimal.NewFromInt(int64(cfg.quantity)))
	return structpb.NewStruct(map[string]any{
		"items": []any{
			map[string]any{
				"productId": cfg.productID,
				"quantity":  float64(cfg.quantity),
				"price":     cfg.price.String(),
			},
		},
		"paymentMethod": map[string]any{
			"method":   "pickup",
			"userName": cfg.customerTag,
		},
		"subTotal":      subTotal.String(),
		"iva":           "0",
		"total":         subTotal.String(),
		"totalProducts": float64(cfg.quantity),
	})
}

func outgoing(parent context.Context, token string, kv ...string) context.Context {
	return metadata.AppendToOutgoingContext(parent, append([]string{"authorization", "Bearer " + token}, kv...)...)
}

func callCreateOrder(
	client orderCaller,
	timeout time.Duration,
	token string,
	req *structpb.Struct,
	key string,
	col *collector,
) (*structpb.Struct, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx = outgoing(ctx, token, idempotencyHeader, key)

	resp, err := client.Call(ctx, grpcsvc.MethodCreateOrder, req)
	col.record("CreateOrder", time.Since(start), grpcCode(err))
	return resp, err
}

func callCancelOrder(
	client orderCaller,
	timeout time.Duration,
	token, orderID string,
	col *collector,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx = outgoing(ctx, token)

	req, err := structpb.NewStruct(map[string]any{"id": orderID, "status": "cancelled"})
	if err != nil {
		return err
	}
	_, err = client.Call(ctx, grpcsvc.MethodUpdateOrderStatus, req)
	col.record("UpdateOrderStatus", time.Since(start), grpcCode(err))
	return err
}

func callDeleteOrder(
	client orderCaller,
	timeout time.Duration,
	token, orderID string,
	col *collector,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx = outgoing(ctx, token)

	req, err := structpb.NewStruct(map[string]any{"id": orderID})
	if err != nil {
		return err
	}
	_, err = client.Call(ctx, grpcsvc.MethodDeleteOrder, req)
	col.record("DeleteOrder", time.Since(start), grpcCode(err))
	return err
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}

func shouldCancelScenario(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}
