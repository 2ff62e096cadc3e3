package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/efreitasn/tradeescrow/internal/auth"
	"github.com/efreitasn/tradeescrow/internal/domain"
	"github.com/efreitasn/tradeescrow/internal/kv"
	"github.com/efreitasn/tradeescrow/internal/metrics"
	"github.com/efreitasn/tradeescrow/internal/store"
)

const (
	testOwner     domain.Identity = "GOWNER"
	testTreasury  domain.Identity = "GTREASURY"
	testValidator domain.Identity = "GVALIDATOR"
	testBuyer     domain.Identity = "GBUYER"
	testSeller    domain.Identity = "GSELLER"

	testTotal    int64 = 15000_0000000
	testFee      int64 = 37_5000000
	testRequired int64 = 15037_5000000
)

// recordingNotifier collects dispatched events in order.
type recordingNotifier struct {
	mu          sync.Mutex
	events      []string
	settlements []*domain.SettlementAuthorization
}

func (n *recordingNotifier) Notify(event string, _ *domain.Trade, settlement *domain.SettlementAuthorization) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	if settlement != nil {
		n.settlements = append(n.settlements, settlement)
	}
}

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

// fatalHelper is the part of testing.TB the env helpers use. Both *testing.T
// and *rapid.T satisfy it, so property tests can shrink setup failures.
type fatalHelper interface {
	Helper()
	Fatalf(format string, args ...any)
}

// testTradeEnv bundles all dependencies needed for TradeService tests.
type testTradeEnv struct {
	store    *store.Store
	registry *RegistryService
	svc      *TradeService
	notifier *recordingNotifier
	clock    atomic.Uint64
}

func newTestTradeEnv(t fatalHelper) *testTradeEnv {
	t.Helper()
	env := &testTradeEnv{
		store:    store.New(kv.NewMemory()),
		notifier: &recordingNotifier{},
	}
	if c, ok := t.(interface{ Cleanup(func()) }); ok {
		c.Cleanup(func() { env.store.Close() })
	}
	env.clock.Store(1_700_000_000)
	clock := func() uint64 { return env.clock.Add(1) }

	_, err := Bootstrap(context.Background(), env.store, domain.Settings{
		FeeRateBps: 25,
		Treasury:   testTreasury,
		Owner:      testOwner,
	})
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	env.registry = NewRegistryService(env.store, nil, clock, nil)
	env.svc = NewTradeService(TradeServiceConfig{
		Store:         env.store,
		VLEIValidator: testValidator,
		Clock:         clock,
		Notifier:      env.notifier,
	})

	env.register(t, domain.RoleBuyer, testBuyer, "Tommy Hilfiger", "549300VGEJK8QMIYGZ34")
	env.register(t, domain.RoleSeller, testSeller, "Jupiter Knitting", "213800ABCDEF1234XYZ")
	return env
}

func as(id domain.Identity) context.Context {
	return auth.WithIdentity(context.Background(), id)
}

func (env *testTradeEnv) register(t fatalHelper, role domain.Role, id domain.Identity, name, lei string) {
	t.Helper()
	req := RegisterParticipantRequest{Identity: id, Name: name, LEIID: lei}
	var err error
	if role == domain.RoleSeller {
		_, err = env.registry.RegisterSeller(as(testOwner), req)
	} else {
		_, err = env.registry.RegisterBuyer(as(testOwner), req)
	}
	if err != nil {
		t.Fatalf("failed to register %s %s: %v", role, id, err)
	}
}

func cottonShirts() DocumentInput {
	return DocumentInput{
		Description: "Cotton T-shirts",
		Quantity:    1000,
		UnitPrice:   15_0000000,
		TotalPrice:  testTotal,
		DocumentRef: "ipfs://po-1",
	}
}

func (env *testTradeEnv) createTrade(t fatalHelper) *domain.Trade {
	t.Helper()
	trade, err := env.svc.CreateTrade(as(testBuyer), CreateTradeRequest{
		Buyer:         testBuyer,
		Seller:        testSeller,
		PurchaseOrder: cottonShirts(),
		BuyerLEIRef:   "vlei://buyer",
		SellerLEIRef:  "vlei://seller",
	})
	if err != nil {
		t.Fatalf("create trade: %v", err)
	}
	return trade
}

func (env *testTradeEnv) fund(t fatalHelper, id uint64) {
	t.Helper()
	if _, err := env.svc.FundEscrow(as(testBuyer), testBuyer, id, testRequired); err != nil {
		t.Fatalf("fund escrow: %v", err)
	}
}

func (env *testTradeEnv) validateBuyer(t fatalHelper, id uint64) {
	t.Helper()
	if _, err := env.svc.ValidateBuyerVLEI(as(testValidator), id); err != nil {
		t.Fatalf("validate buyer vlei: %v", err)
	}
}

func (env *testTradeEnv) fulfill(t fatalHelper, id uint64, invoice, receipt DocumentInput) {
	t.Helper()
	_, err := env.svc.FulfillOrder(as(testSeller), testSeller, id, FulfillOrderRequest{
		Invoice:           invoice,
		Receipt:           receipt,
		WarehouseLocation: "Dhaka, Bangladesh",
	})
	if err != nil {
		t.Fatalf("fulfill order: %v", err)
	}
}

func (env *testTradeEnv) state(t fatalHelper, id uint64) domain.TradeState {
	t.Helper()
	trade, err := env.svc.GetTrade(context.Background(), id)
	if err != nil {
		t.Fatalf("get trade: %v", err)
	}
	return trade.State
}

// --- End-to-end ---

func TestTradeLifecycle_Settles(t *testing.T) {
	env := newTestTradeEnv(t)

	trade := env.createTrade(t)
	if trade.TradeID != 1 {
		t.Fatalf("got trade_id %d, want 1", trade.TradeID)
	}
	if trade.State != domain.TradeStateOrdered {
		t.Fatalf("got state %s, want ordered", trade.State)
	}

	docs, err := env.svc.GetVLEIDocuments(context.Background(), 1)
	if err != nil {
		t.Fatalf("get vlei: %v", err)
	}
	if docs.BuyerLEI != "549300VGEJK8QMIYGZ34" || docs.SellerLEI != "213800ABCDEF1234XYZ" {
		t.Errorf("LEIs not copied from registry: %+v", docs)
	}
	if docs.BuyerValidated || docs.SellerValidated {
		t.Error("expected fresh vLEI record to be unvalidated")
	}

	funded, err := env.svc.FundEscrow(as(testBuyer), testBuyer, 1, testRequired)
	if err != nil {
		t.Fatalf("fund escrow: %v", err)
	}
	if funded.EscrowBalance != testRequired {
		t.Errorf("got escrow_balance %d, want %d", funded.EscrowBalance, testRequired)
	}
	if funded.MarketplaceFee != testFee {
		t.Errorf("got marketplace_fee %d, want %d", funded.MarketplaceFee, testFee)
	}

	env.validateBuyer(t, 1)
	env.fulfill(t, 1, cottonShirts(), cottonShirts())
	if got := env.state(t, 1); got != domain.TradeStateFulfilled {
		t.Fatalf("got state %s, want fulfilled", got)
	}

	settlement, err := env.svc.AcceptTrade(as(testBuyer), testBuyer, 1)
	if err != nil {
		t.Fatalf("accept trade: %v", err)
	}
	if settlement.Seller != testSeller || settlement.SellerAmount != testTotal {
		t.Errorf("got seller payout %s/%d, want %s/%d", settlement.Seller, settlement.SellerAmount, testSeller, testTotal)
	}
	if settlement.Treasury != testTreasury || settlement.TreasuryFee != testFee {
		t.Errorf("got treasury payout %s/%d, want %s/%d", settlement.Treasury, settlement.TreasuryFee, testTreasury, testFee)
	}

	settled, err := env.svc.GetTrade(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if settled.State != domain.TradeStateSettled {
		t.Errorf("got state %s, want settled", settled.State)
	}
	if !(settled.CreatedAt < settled.FulfilledAt && settled.FulfilledAt < settled.SettledAt) {
		t.Errorf("timestamps not ordered: created=%d fulfilled=%d settled=%d",
			settled.CreatedAt, settled.FulfilledAt, settled.SettledAt)
	}
	if settlement.AuthorizedAt != settled.SettledAt {
		t.Errorf("got authorized_at %d, want %d", settlement.AuthorizedAt, settled.SettledAt)
	}

	want := []string{
		domain.EventTradeCreated,
		domain.EventEscrowFunded,
		domain.EventTradeFulfilled,
		domain.EventTradeSettled,
	}
	got := env.notifier.Events()
	if len(got) != len(want) {
		t.Fatalf("got events %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestTradeLifecycle_QuantityMismatchBlocksSettlement(t *testing.T) {
	env := newTestTradeEnv(t)
	env.createTrade(t)
	env.fund(t, 1)
	env.validateBuyer(t, 1)

	shipped := cottonShirts()
	shipped.Quantity = 1100
	env.fulfill(t, 1, cottonShirts(), shipped)

	_, err := env.svc.AcceptTrade(as(testBuyer), testBuyer, 1)
	if !errors.Is(err, domain.ErrQuantityVarianceTooHigh) {
		t.Fatalf("got %v, want ErrQuantityVarianceTooHigh", err)
	}
	if got := env.state(t, 1); got != domain.TradeStateFulfilled {
		t.Errorf("got state %s, want fulfilled after failed match", got)
	}

	report, err := env.svc.MatchPreview(context.Background(), 1)
	if err != nil {
		t.Fatalf("match preview: %v", err)
	}
	if report.Passed {
		t.Error("expected preview to report a failed match")
	}
}

func TestTradeLifecycle_DescriptionMismatchBlocksSettlement(t *testing.T) {
	env := newTestTradeEnv(t)
	reg := prometheus.NewRegistry()
	env.svc = NewTradeService(TradeServiceConfig{
		Store:         env.store,
		VLEIValidator: testValidator,
		Clock:         func() uint64 { return env.clock.Add(1) },
		Notifier:      env.notifier,
		Metrics:       metrics.NewEscrowMetrics(reg),
	})
	env.createTrade(t)
	env.fund(t, 1)
	env.validateBuyer(t, 1)

	invoice := cottonShirts()
	invoice.Description = "Polyester T-shirts"
	env.fulfill(t, 1, invoice, cottonShirts())

	settlement, err := env.svc.AcceptTrade(as(testBuyer), testBuyer, 1)
	if err != domain.ErrDescriptionMismatch {
		t.Fatalf("got %v, want ErrDescriptionMismatch unwrapped", err)
	}
	if settlement != nil {
		t.Errorf("expected no settlement authorization, got %+v", settlement)
	}

	trade, err := env.svc.GetTrade(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if trade.State != domain.TradeStateFulfilled {
		t.Errorf("got state %s, want fulfilled after failed match", trade.State)
	}
	if trade.SettledAt != 0 {
		t.Errorf("got settled_at %d, want 0", trade.SettledAt)
	}
	if trade.EscrowBalance != testRequired {
		t.Errorf("got escrow balance %d, want %d", trade.EscrowBalance, testRequired)
	}
	for _, event := range env.notifier.Events() {
		if event == domain.EventTradeSettled {
			t.Fatal("trade.settled dispatched for a failed match")
		}
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var failures float64
	for _, mf := range mfs {
		if mf.GetName() != "escrow_match_failures_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "reason" && lp.GetValue() == "description" {
					failures += m.GetCounter().GetValue()
				}
			}
		}
	}
	if failures != 1 {
		t.Errorf("got %v description match failures, want 1", failures)
	}

	// A fulfilled trade is no longer cancellable.
	if _, err := env.svc.CancelTrade(as(testBuyer), testBuyer, 1); !errors.Is(err, domain.ErrInvalidTradeState) {
		t.Errorf("got %v, want ErrInvalidTradeState for cancel after fulfillment", err)
	}
}

func TestTradeLifecycle_PriceWithinTolerance(t *testing.T) {
	env := newTestTradeEnv(t)
	env.createTrade(t)
	env.fund(t, 1)
	env.validateBuyer(t, 1)

	invoice := cottonShirts()
	invoice.TotalPrice = 15200_0000000 // 1.33% above
	env.fulfill(t, 1, invoice, cottonShirts())

	if _, err := env.svc.AcceptTrade(as(testBuyer), testBuyer, 1); err != nil {
		t.Fatalf("expected settlement within tolerance, got %v", err)
	}
}

func TestTradeLifecycle_PriceMismatchBlocksSettlement(t *testing.T) {
	env := newTestTradeEnv(t)
	env.createTrade(t)
	env.fund(t, 1)
	env.validateBuyer(t, 1)

	invoice := cottonShirts()
	invoice.TotalPrice = 15500_0000000
	env.fulfill(t, 1, invoice, cottonShirts())

	_, err := env.svc.AcceptTrade(as(testBuyer), testBuyer, 1)
	if !errors.Is(err, domain.ErrPriceVarianceTooHigh) {
		t.Fatalf("got %v, want ErrPriceVarianceTooHigh", err)
	}
}

// --- CreateTrade ---

func TestCreateTrade_SequentialIDsAndIndices(t *testing.T) {
	env := newTestTradeEnv(t)
	for want := uint64(1); want <= 3; want++ {
		if got := env.createTrade(t).TradeID; got != want {
			t.Fatalf("got trade_id %d, want %d", got, want)
		}
	}

	buyerTrades, err := env.svc.GetTradesByBuyer(context.Background(), testBuyer)
	if err != nil {
		t.Fatal(err)
	}
	sellerTrades, err := env.svc.GetTradesBySeller(context.Background(), testSeller)
	if err != nil {
		t.Fatal(err)
	}
	for _, ids := range [][]uint64{buyerTrades, sellerTrades} {
		if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
			t.Errorf("got index %v, want [1 2 3]", ids)
		}
	}

	none, err := env.svc.GetTradesByBuyer(context.Background(), "GNOBODY")
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("got %v, want empty index", none)
	}
}

func TestCreateTrade_Rejections(t *testing.T) {
	env := newTestTradeEnv(t)
	env.register(t, domain.RoleBuyer, "GIDLE", "Idle Buyer", "LEI-IDLE")
	if _, err := env.registry.DeactivateBuyer(as(testOwner), "GIDLE"); err != nil {
		t.Fatal(err)
	}

	zero := cottonShirts()
	zero.TotalPrice = 0

	tests := []struct {
		name    string
		ctx     context.Context
		req     CreateTradeRequest
		wantErr error
	}{
		{"buyer is seller", as(testBuyer), CreateTradeRequest{Buyer: testBuyer, Seller: testBuyer, PurchaseOrder: cottonShirts()}, domain.ErrBuyerCannotBeSeller},
		{"unknown buyer", as("GSTRANGER"), CreateTradeRequest{Buyer: "GSTRANGER", Seller: testSeller, PurchaseOrder: cottonShirts()}, domain.ErrBuyerNotRegistered},
		{"inactive buyer", as("GIDLE"), CreateTradeRequest{Buyer: "GIDLE", Seller: testSeller, PurchaseOrder: cottonShirts()}, domain.ErrBuyerInactive},
		{"unknown seller", as(testBuyer), CreateTradeRequest{Buyer: testBuyer, Seller: "GSTRANGER", PurchaseOrder: cottonShirts()}, domain.ErrSellerNotRegistered},
		{"zero amount", as(testBuyer), CreateTradeRequest{Buyer: testBuyer, Seller: testSeller, PurchaseOrder: zero}, domain.ErrInvalidAmount},
		{"not signed by buyer", as(testSeller), CreateTradeRequest{Buyer: testBuyer, Seller: testSeller, PurchaseOrder: cottonShirts()}, domain.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.CreateTrade(tt.ctx, tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Nothing was written by the failed calls.
	if got := env.createTrade(t).TradeID; got != 1 {
		t.Errorf("got trade_id %d after rejections, want 1", got)
	}

	// An empty description is left to the HTTP layer to reject.
	blank := cottonShirts()
	blank.Description = ""
	trade, err := env.svc.CreateTrade(as(testBuyer), CreateTradeRequest{Buyer: testBuyer, Seller: testSeller, PurchaseOrder: blank})
	if err != nil {
		t.Fatalf("got %v creating a trade with an empty description, want success", err)
	}
	if trade.TradeID != 2 {
		t.Errorf("got trade_id %d, want 2", trade.TradeID)
	}
}

// --- FundEscrow ---

func TestFundEscrow_Rejections(t *testing.T) {
	env := newTestTradeEnv(t)
	env.createTrade(t)

	if _, err := env.svc.FundEscrow(as(testBuyer), testBuyer, 99, testRequired); !errors.Is(err, domain.ErrTradeNotFound) {
		t.Errorf("got %v, want ErrTradeNotFound", err)
	}
	if _, err := env.svc.FundEscrow(as(testSeller), testSeller, 1, testRequired); !errors.Is(err, domain.ErrNotBuyer) {
		t.Errorf("got %v, want ErrNotBuyer", err)
	}
	if _, err := env.svc.FundEscrow(as(testSeller), testBuyer, 1, testRequired); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
	if _, err := env.svc.FundEscrow(as(testBuyer), testBuyer, 1, testRequired-1); !errors.Is(err, domain.ErrInsufficientEscrowFunding) {
		t.Errorf("got %v, want ErrInsufficientEscrowFunding", err)
	}

	trade, err := env.svc.GetTrade(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if trade.Funded() {
		t.Error("expected trade to remain unfunded after rejections")
	}
}

func TestFundEscrow_OnlyOnce(t *testing.T) {
	env := newTestTradeEnv(t)
	env.createTrade(t)
	env.fund(t, 1)

	_, err := env.svc.FundEscrow(as(testBuyer), testBuyer, 1, testRequired*2)
	if !errors.Is(err, domain.ErrEscrowAlreadyFunded) {
		t.Fatalf("got %v, want ErrEscrowAlreadyFunded", err)
	}

	trade, err := env.svc.GetTrade(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if trade.EscrowBalance != testRequired || trade.MarketplaceFee != testFee {
		t.Errorf("got balance=%d fee=%d, want %d/%d", trade.EscrowBalance, trade.MarketplaceFee, testRequired, testFee)
	}
}

func TestFundEscrow_Overpayment(t *testing.T) {
	env := newTestTradeEnv(t)
	env.createTrade(t)

	trade, err := env.svc.FundEscrow(as(testBuyer), testBuyer, 1, testRequired+1_0000000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trade.EscrowBalance != testRequired+1_0000000 {
		t.Errorf("got balance %d, want full payment recorded", trade.EscrowBalance)
	}
}

func TestFundEscrow_Overflow(t *testing.T) {
	env := newTestTradeEnv(t)
	huge := cottonShirts()
	huge.TotalPrice = 1 << 62
	if _, err := env.svc.CreateTrade(as(testBuyer), CreateTradeRequest{Buyer: testBuyer, Seller: testSeller, PurchaseOrder: huge}); err != nil {
		t.Fatal(err)
	}

	_, err := env.svc.FundEscrow(as(testBuyer), testBuyer, 1, 1<<62)
	if !errors.Is(err, domain.ErrOverflow) {
		t.Fatalf("got %v, want ErrOverflow", err)
	}
}

// --- vLEI ---

func TestValidateVLEI(t *testing.T) {
	env := newTestTradeEnv(t)
	env.createTrade(t)

	if _, err := env.svc.ValidateBuyerVLEI(as(testBuyer), 1); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized for non-validator", err)
	}
	if _, err := env.svc.ValidateSellerVLEI(as(testValidator), 42); !errors.Is(err, domain.ErrVLEIDocumentsNotFound) {
		t.Fatalf("got %v, want ErrVLEIDocumentsNotFound", err)
	}

	first, err := env.svc.ValidateSellerVLEI(as(testValidator), 1)
	if err != nil {
		t.Fatal(err)
	}
	if !first.SellerValidated || first.BuyerValidated {
		t.Errorf("got flags buyer=%v seller=%v", first.BuyerValidated, first.SellerValidated)
	}

	second, err := env.svc.ValidateSellerVLEI(as(testValidator), 1)
	if err != nil {
		t.Fatal(err)
	}
	if !second.SellerValidated {
		t.Error("seller flag reverted")
	}
	if second.ValidatedAt <= first.ValidatedAt {
		t.Errorf("expected validated_at to advance, got %d then %d", first.ValidatedAt, second.ValidatedAt)
	}
}

func TestValidateVLEI_OpenWithoutValidator(t *testing.T) {
	env := newTestTradeEnv(t)
	env.createTrade(t)
	open := NewTradeService(TradeServiceConfig{Store: env.store})

	docs, err := open.ValidateBuyerVLEI(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !docs.BuyerValidated {
		t.Error("expected buyer flag set")
	}
}

// --- FulfillOrder ---

func TestFulfillOrder_Preconditions(t *testing.T) {
	env := newTestTradeEnv(t)
	env.createTrade(t)
	req := FulfillOrderRequest{Invoice: cottonShirts(), Receipt: cottonShirts()}

	if _, err := env.svc.FulfillOrder(as(testBuyer), testBuyer, 1, req); !errors.Is(err, domain.ErrNotSeller) {
		t.Errorf("got %v, want ErrNotSeller", err)
	}
	if _, err := env.svc.FulfillOrder(as(testSeller), testSeller, 1, req); !errors.Is(err, domain.ErrEscrowNotFunded) {
		t.Errorf("got %v, want ErrEscrowNotFunded", err)
	}

	env.fund(t, 1)
	if _, err := env.svc.FulfillOrder(as(testSeller), testSeller, 1, req); !errors.Is(err, domain.ErrBuyerVLEINotValidated) {
		t.Errorf("got %v, want ErrBuyerVLEINotValidated", err)
	}

	if _, err := env.svc.GetCustomerInvoice(context.Background(), 1); !errors.Is(err, domain.ErrCustomerInvoiceNotFound) {
		t.Errorf("got %v, want no invoice stored after rejections", err)
	}

	env.validateBuyer(t, 1)
	env.fulfill(t, 1, cottonShirts(), cottonShirts())

	if _, err := env.svc.FulfillOrder(as(testSeller), testSeller, 1, req); !errors.Is(err, domain.ErrInvalidTradeState) {
		t.Errorf("got %v, want ErrInvalidTradeState on second fulfillment", err)
	}

	wr, err := env.svc.GetWarehouseReceipt(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if wr.WarehouseLocation != "Dhaka, Bangladesh" || wr.CreatedBy != testSeller {
		t.Errorf("unexpected receipt %+v", wr)
	}
}

// --- Reject / Cancel ---

func TestRejectAndCancel_OnlyFromOrdered(t *testing.T) {
	env := newTestTradeEnv(t)
	env.createTrade(t) // 1: rejected
	env.createTrade(t) // 2: cancelled
	env.createTrade(t) // 3: fulfilled

	if _, err := env.svc.RejectOrder(as(testBuyer), testBuyer, 1); !errors.Is(err, domain.ErrNotSeller) {
		t.Errorf("got %v, want ErrNotSeller", err)
	}
	if _, err := env.svc.CancelTrade(as(testSeller), testSeller, 2); !errors.Is(err, domain.ErrNotBuyer) {
		t.Errorf("got %v, want ErrNotBuyer", err)
	}

	rejected, err := env.svc.RejectOrder(as(testSeller), testSeller, 1)
	if err != nil {
		t.Fatal(err)
	}
	if rejected.State != domain.TradeStateRejected {
		t.Errorf("got %s, want rejected", rejected.State)
	}
	cancelled, err := env.svc.CancelTrade(as(testBuyer), testBuyer, 2)
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.State != domain.TradeStateCancelled {
		t.Errorf("got %s, want cancelled", cancelled.State)
	}

	env.fund(t, 3)
	env.validateBuyer(t, 3)
	env.fulfill(t, 3, cottonShirts(), cottonShirts())

	for _, id := range []uint64{1, 2, 3} {
		if _, err := env.svc.RejectOrder(as(testSeller), testSeller, id); !errors.Is(err, domain.ErrInvalidTradeState) {
			t.Errorf("reject trade %d: got %v, want ErrInvalidTradeState", id, err)
		}
		if _, err := env.svc.CancelTrade(as(testBuyer), testBuyer, id); !errors.Is(err, domain.ErrInvalidTradeState) {
			t.Errorf("cancel trade %d: got %v, want ErrInvalidTradeState", id, err)
		}
	}
}

// --- AcceptTrade ---

func TestAcceptTrade_Preconditions(t *testing.T) {
	env := newTestTradeEnv(t)
	env.createTrade(t)

	if _, err := env.svc.AcceptTrade(as(testBuyer), testBuyer, 1); !errors.Is(err, domain.ErrTradeNotFulfilled) {
		t.Errorf("got %v, want ErrTradeNotFulfilled", err)
	}
	if _, err := env.svc.AcceptTrade(as(testSeller), testSeller, 1); !errors.Is(err, domain.ErrNotBuyer) {
		t.Errorf("got %v, want ErrNotBuyer", err)
	}
	if _, err := env.svc.AcceptTrade(as(testBuyer), testBuyer, 7); !errors.Is(err, domain.ErrTradeNotFound) {
		t.Errorf("got %v, want ErrTradeNotFound", err)
	}

	env.fund(t, 1)
	env.validateBuyer(t, 1)
	env.fulfill(t, 1, cottonShirts(), cottonShirts())
	if _, err := env.svc.AcceptTrade(as(testBuyer), testBuyer, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.AcceptTrade(as(testBuyer), testBuyer, 1); !errors.Is(err, domain.ErrInvalidTradeState) {
		t.Errorf("got %v, want ErrInvalidTradeState on settled trade", err)
	}
}

// --- Queries ---

func TestListTrades_Pagination(t *testing.T) {
	env := newTestTradeEnv(t)
	for i := 0; i < 5; i++ {
		env.createTrade(t)
	}

	page, err := env.svc.ListTrades(context.Background(), 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 5 {
		t.Errorf("got total %d, want 5", page.Total)
	}
	if len(page.Trades) != 2 || page.Trades[0].TradeID != 3 || page.Trades[1].TradeID != 4 {
		t.Errorf("unexpected page contents: %+v", page.Trades)
	}

	past, err := env.svc.ListTrades(context.Background(), 9, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(past.Trades) != 0 {
		t.Errorf("got %d trades past the end, want 0", len(past.Trades))
	}

	// 2^62+1 pages of 100 would wrap a naive offset back to trade 1.
	huge, err := env.svc.ListTrades(context.Background(), 1<<62+1, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(huge.Trades) != 0 || huge.Total != 5 {
		t.Errorf("got %d trades (total %d) for a page far past the end, want 0 (total 5)", len(huge.Trades), huge.Total)
	}

	defaults, err := env.svc.ListTrades(context.Background(), 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if defaults.Page != 1 || defaults.Limit != defaultPageLimit || len(defaults.Trades) != 5 {
		t.Errorf("unexpected defaults: page=%d limit=%d len=%d", defaults.Page, defaults.Limit, len(defaults.Trades))
	}
}

func TestCalculateEscrowCost(t *testing.T) {
	env := newTestTradeEnv(t)
	total, fee, err := env.svc.CalculateEscrowCost(context.Background(), testTotal)
	if err != nil {
		t.Fatal(err)
	}
	if total != testRequired || fee != testFee {
		t.Errorf("got total=%d fee=%d, want %d/%d", total, fee, testRequired, testFee)
	}
}

func TestBootstrap_KeepsStoredSettings(t *testing.T) {
	env := newTestTradeEnv(t)
	env.createTrade(t)

	got, err := Bootstrap(context.Background(), env.store, domain.Settings{FeeRateBps: 500, Treasury: "GOTHER", Owner: "GOTHER"})
	if err != nil {
		t.Fatal(err)
	}
	if got.FeeRateBps != 25 || got.Treasury != testTreasury || got.Owner != testOwner {
		t.Errorf("settings overwritten on restart: %+v", got)
	}
	if id := env.createTrade(t).TradeID; id != 2 {
		t.Errorf("counter reset on restart, got trade_id %d", id)
	}
}

func TestBootstrap_RejectsInvalidSettings(t *testing.T) {
	st := store.New(kv.NewMemory())
	defer st.Close()

	_, err := Bootstrap(context.Background(), st, domain.Settings{FeeRateBps: domain.MaxFeeRateBps + 1, Treasury: testTreasury, Owner: testOwner})
	if !errors.Is(err, domain.ErrInvalidFeeRate) {
		t.Fatalf("got %v, want ErrInvalidFeeRate", err)
	}

	svc := NewTradeService(TradeServiceConfig{Store: st})
	if _, err := svc.Settings(context.Background()); !errors.Is(err, store.ErrNotInitialized) {
		t.Fatalf("got %v, want ErrNotInitialized", err)
	}
}
