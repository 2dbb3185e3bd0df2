package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dvloznov/aeva/internal/currency"
	"github.com/dvloznov/aeva/internal/domain"
	"github.com/dvloznov/aeva/internal/receipt"
	"github.com/dvloznov/aeva/internal/receiptsource"
)

// errAborted is returned when the user quits or input ends mid-receipt.
var errAborted = errors.New("scan aborted")

// scanSession walks one receipt through the workflow on a terminal.
type scanSession struct {
	workflow   *receipt.Workflow
	categories func() []domain.Category
	in         *bufio.Scanner
	out        io.Writer
}

func (s *scanSession) run(ctx context.Context, rec receiptsource.Receipt, merchant string) error {
	if _, err := s.workflow.SelectFile(rec.Name, rec.Image); err != nil {
		return err
	}
	if merchant != "" {
		if _, err := s.workflow.SetMerchant(merchant); err != nil {
			return err
		}
	}

	fmt.Fprintf(s.out, "Analyzing %s...\n", rec.Name)
	snap, err := s.workflow.Submit(ctx)
	if err != nil {
		s.workflow.Cancel()
		return err
	}
	if snap.Receipt != nil {
		fmt.Fprintf(s.out, "%s, %s: %d items, total %s\n", snap.Merchant, snap.Receipt.Date,
			len(snap.Receipt.Items), currency.Format(snap.Receipt.Total, snap.Receipt.Currency))
	}

	for {
		switch snap.State {
		case receipt.StateIdle:
			fmt.Fprintf(s.out, "Created %d transactions.\n", len(snap.Created))
			return nil

		case receipt.StateTaxPending:
			answer, ok := s.prompt(fmt.Sprintf("Book tax of %s as a separate %s expense? [y/N] ",
				currency.Format(snap.Tax, snap.Receipt.Currency), domain.OthersName))
			if !ok {
				s.workflow.Cancel()
				return errAborted
			}
			book := strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes")
			if snap, err = s.workflow.ResolveTax(ctx, book); err != nil {
				return err
			}

		case receipt.StateItemsPending:
			if snap, err = s.assignCurrent(ctx, snap); err != nil {
				return err
			}

		default:
			return fmt.Errorf("unexpected receipt state %s", snap.State)
		}
	}
}

// assignCurrent asks for the category of the current item until a valid
// answer is given.
func (s *scanSession) assignCurrent(ctx context.Context, snap receipt.Snapshot) (receipt.Snapshot, error) {
	item := snap.Current
	categories := s.categories()

	fmt.Fprintf(s.out, "\nItem: %s  %s", item.Name, currency.Format(item.OriginalAmount, item.OriginalCurrency))
	if item.OriginalCurrency != "" && item.Amount != item.OriginalAmount {
		fmt.Fprintf(s.out, " (%.2f in primary currency)", item.Amount)
	}
	fmt.Fprintln(s.out)
	for i, c := range categories {
		fmt.Fprintf(s.out, "  %2d. %s\n", i+1, c)
	}

	hint := "number or name"
	if !item.SuggestedCategory.IsZero() {
		hint = fmt.Sprintf("Enter for %s", item.SuggestedCategory)
	}

	for {
		answer, ok := s.prompt(fmt.Sprintf("Category (%s, s = skip rest, q = quit): ", hint))
		if !ok || strings.EqualFold(answer, "q") {
			s.workflow.Cancel()
			return snap, errAborted
		}
		if strings.EqualFold(answer, "s") {
			return s.workflow.SkipRemaining(ctx)
		}

		var c domain.Category
		switch {
		case answer == "" && !item.SuggestedCategory.IsZero():
			c = item.SuggestedCategory
		case answer != "":
			if i, ok := parseChoice(answer, len(categories)); ok {
				c = categories[i]
			} else {
				for _, known := range categories {
					if strings.EqualFold(known.Name(), answer) {
						c = known
					}
				}
			}
		}
		if c.IsZero() {
			fmt.Fprintln(s.out, "Unknown category, try again.")
			continue
		}

		next, err := s.workflow.AssignCategory(ctx, c)
		if errors.Is(err, domain.ErrValidation) {
			fmt.Fprintln(s.out, err)
			continue
		}
		return next, err
	}
}

func (s *scanSession) prompt(question string) (string, bool) {
	fmt.Fprint(s.out, question)
	if !s.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(s.in.Text()), true
}
