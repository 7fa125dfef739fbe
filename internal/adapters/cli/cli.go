package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"delivery-reconciler/internal/app"
	"delivery-reconciler/internal/core"

	"github.com/shopspring/decimal"
)

const usage = "Available: reconcile <id> <qty> [remarks], ensure-account <customer> <plan> [daily-cap], " +
	"account <customer>, delivery <id>, adjustments <id>, stock <station> <product>, " +
	"price <station> <product> <customer>, invalidate-price <station> <product> <customer>"

// Run executes a one-shot CLI command, writing its report to out.
// args is os.Args[1:]; the first element is the subcommand name.
func Run(ctx context.Context, svc app.ApplicationService, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("missing command\n%s", usage)
	}

	switch args[0] {
	case "reconcile", "rec", "r":
		if len(args) < 3 {
			return errors.New("usage: app reconcile <transaction-id> <fulfilled-qty> [remarks]")
		}
		id, err := parseID("transaction id", args[1])
		if err != nil {
			return err
		}
		qty, err := decimal.NewFromString(args[2])
		if err != nil {
			return fmt.Errorf("invalid quantity %q: %w", args[2], err)
		}
		req := app.ReconcileDeliveryRequest{TransactionID: id, FulfilledQuantity: qty}
		if len(args) > 3 {
			remarks := strings.Join(args[3:], " ")
			req.Remarks = &remarks
		}
		res, err := svc.ReconcileDelivery(ctx, req)
		if res != nil {
			printReconcileResult(out, res)
		}
		if err != nil {
			return fmt.Errorf("reconcile failed: %w", err)
		}

	case "ensure-account", "ensure":
		if len(args) < 3 {
			return errors.New("usage: app ensure-account <customer-id> <prepaid|postpaid|daily_capped> [daily-cap]")
		}
		id, err := parseID("customer id", args[1])
		if err != nil {
			return err
		}
		req := app.EnsureAccountRequest{CustomerID: id, PlanType: args[2]}
		if len(args) > 3 {
			dailyCap, err := decimal.NewFromString(args[3])
			if err != nil {
				return fmt.Errorf("invalid daily cap %q: %w", args[3], err)
			}
			req.DailyCap = &dailyCap
		}
		res, err := svc.EnsureAccount(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to provision account: %w", err)
		}
		fmt.Fprintf(out, "Account %s.\n", res.Outcome)
		printAccount(out, res.Account)

	case "account", "acct":
		if len(args) < 2 {
			return errors.New("usage: app account <customer-id>")
		}
		id, err := parseID("customer id", args[1])
		if err != nil {
			return err
		}
		acct, err := svc.GetAccount(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get account: %w", err)
		}
		printAccount(out, acct)

	case "delivery", "del":
		if len(args) < 2 {
			return errors.New("usage: app delivery <transaction-id>")
		}
		id, err := parseID("transaction id", args[1])
		if err != nil {
			return err
		}
		d, err := svc.GetDelivery(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get delivery: %w", err)
		}
		printDelivery(out, d)

	case "adjustments", "adj":
		if len(args) < 2 {
			return errors.New("usage: app adjustments <transaction-id>")
		}
		id, err := parseID("transaction id", args[1])
		if err != nil {
			return err
		}
		res, err := svc.ListAdjustments(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to list adjustments: %w", err)
		}
		printAdjustments(out, res)

	case "stock":
		if len(args) < 3 {
			return errors.New("usage: app stock <station-id> <product-id>")
		}
		stationID, err := parseID("station id", args[1])
		if err != nil {
			return err
		}
		productID, err := parseID("product id", args[2])
		if err != nil {
			return err
		}
		inv, err := svc.GetInventory(ctx, stationID, productID)
		if err != nil {
			return fmt.Errorf("failed to get stock: %w", err)
		}
		fmt.Fprintf(out, "Station %d product %d: %s on hand\n", inv.StationID, inv.ProductID, inv.StockQuantity.StringFixed(4))

	case "price":
		if len(args) < 4 {
			return errors.New("usage: app price <station-id> <product-id> <customer-id>")
		}
		key, err := parsePriceKey(args[1:4])
		if err != nil {
			return err
		}
		price, err := svc.ResolvePrice(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to resolve price: %w", err)
		}
		if !price.Configured {
			fmt.Fprintf(out, "No price configured for %s\n", key)
			return nil
		}
		fmt.Fprintf(out, "Unit price for %s: %s\n", key, price.Amount.StringFixed(4))

	case "invalidate-price":
		if len(args) < 4 {
			return errors.New("usage: app invalidate-price <station-id> <product-id> <customer-id>")
		}
		key, err := parsePriceKey(args[1:4])
		if err != nil {
			return err
		}
		if err := svc.InvalidatePrice(ctx, key); err != nil {
			return fmt.Errorf("failed to invalidate price: %w", err)
		}
		fmt.Fprintf(out, "Cached price dropped for %s\n", key)

	default:
		return fmt.Errorf("unknown command: %s\n%s", args[0], usage)
	}
	return nil
}

func parsePriceKey(args []string) (core.PriceKey, error) {
	var ids [3]int64
	for i, name := range []string{"station id", "product id", "customer id"} {
		id, err := parseID(name, args[i])
		if err != nil {
			return core.PriceKey{}, err
		}
		ids[i] = id
	}
	return core.PriceKey{StationID: ids[0], ProductID: ids[1], CustomerID: ids[2]}, nil
}

func parseID(name, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

func printReconcileResult(out io.Writer, res *app.ReconcileDeliveryResult) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 62))
	fmt.Fprintf(out, "  RECONCILIATION  %s (attempts: %d)\n", strings.ToUpper(string(res.Status)), res.Attempts)
	fmt.Fprintln(out, strings.Repeat("=", 62))
	adj := res.Adjustment
	fmt.Fprintf(out, "  %-20s %s -> %s (%s)\n", "Quantity", adj.FromQuantity.String(), adj.ToQuantity.String(), adj.Direction)
	fmt.Fprintf(out, "  %-20s %s @ %s\n", "Monetary delta", adj.MonetaryDelta.StringFixed(4), adj.UnitPrice.StringFixed(4))
	if res.Account != nil {
		fmt.Fprintf(out, "  %-20s %s\n", "Balance", res.Account.Balance.StringFixed(4))
		fmt.Fprintf(out, "  %-20s %s\n", "Credit limit", res.Account.CreditLimit.StringFixed(4))
	}
	if res.Inventory != nil {
		fmt.Fprintf(out, "  %-20s %s\n", "Station stock", res.Inventory.StockQuantity.StringFixed(4))
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
	fmt.Fprintln(out, strings.Repeat("=", 62))
}

func printAccount(out io.Writer, a *core.CustomerAccount) {
	fmt.Fprintf(out, "  %-14s %d\n", "Customer", a.CustomerID)
	fmt.Fprintf(out, "  %-14s %s\n", "Plan", a.PlanType)
	fmt.Fprintf(out, "  %-14s %s\n", "Balance", a.Balance.StringFixed(4))
	fmt.Fprintf(out, "  %-14s %s\n", "Credit limit", a.CreditLimit.StringFixed(4))
	if a.DailyCap.Valid {
		fmt.Fprintf(out, "  %-14s %s / %s\n", "Daily used", a.DailyUsed.Decimal.StringFixed(4), a.DailyCap.Decimal.StringFixed(4))
	}
}

func printDelivery(out io.Writer, d *core.DeliveryTransaction) {
	fmt.Fprintf(out, "  %-20s %d (revision %d)\n", "Delivery", d.ID, d.Revision)
	fmt.Fprintf(out, "  %-20s station %d product %d customer %d\n", "Route", d.StationID, d.ProductID, d.CustomerID)
	fmt.Fprintf(out, "  %-20s %s\n", "Requested", d.RequestedQuantity.String())
	fmt.Fprintf(out, "  %-20s %s\n", "Fulfilled", d.FulfilledQuantity.String())
	if d.UnitPriceAtFulfillment.Valid {
		fmt.Fprintf(out, "  %-20s %s\n", "Unit price", d.UnitPriceAtFulfillment.Decimal.StringFixed(4))
	}
	if d.Remarks != "" {
		fmt.Fprintf(out, "  %-20s %s\n", "Remarks", d.Remarks)
	}
}

func printAdjustments(out io.Writer, res *app.AdjustmentListResult) {
	fmt.Fprintf(out, "  %-8s %-10s %12s %12s %14s\n", "REV", "DIRECTION", "FROM", "TO", "AMOUNT")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 60))
	for _, a := range res.Adjustments {
		fmt.Fprintf(out, "  %-8d %-10s %12s %12s %14s\n",
			a.Revision, a.Direction, a.FromQuantity.String(), a.ToQuantity.String(), a.MonetaryDelta.StringFixed(4))
	}
}
