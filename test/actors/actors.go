package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"enquiryflow/customer"
)

// tolerated reports errors that contention or chaos can legitimately produce.
func tolerated(err error) bool {
	return errors.Is(err, customer.ErrConflict) ||
		errors.Is(err, customer.ErrStoreUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func str(v string) *string { return &v }

func num(v float64) *float64 { return &v }

// Remark builds a valid remark with the given rating.
func Remark(rating int, attendedBy string) customer.RemarkInput {
	return customer.RemarkInput{
		Remark:     str(fmt.Sprintf("Follow up visit, client rated the site %d", rating)),
		Rating:     num(float64(rating)),
		AttendedBy: str(attendedBy),
	}
}

// Enquiry builds a valid create input for mobile.
func Enquiry(mobile string) customer.Input {
	return customer.Input{
		FirstName:         str("Stress"),
		LastName:          str("Client"),
		Address:           str("Plot 7, Sector 21, Navi Mumbai"),
		Age:               num(40),
		Mobile:            str(mobile),
		Email:             str("stress.client@example.com"),
		IncomeSource:      str("business"),
		Income:            num(120000),
		Budget:            num(6500000),
		Reference:         str("agent"),
		ReferencePerson:   str("Meera Joshi"),
		PropertyInterests: map[string]any{customer.InterestTwoBHK: true},
		Remarks:           []customer.RemarkInput{Remark(6, "Stress Seeder")},
	}
}

// RemarkAppender appends remarks with random ratings and counts the ones that landed.
func RemarkAppender(ctx context.Context, svc *customer.Service, id string, landed *atomic.Int64, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := svc.AppendRemark(ctx, id, Remark(1+rand.Intn(10), "Stress Appender"), customer.Actor{UserID: "stress-appender"})
		switch {
		case err == nil:
			landed.Add(1)
		case tolerated(err):
		default:
			return fmt.Errorf("append remark: %w", err)
		}
		time.Sleep(time.Duration(5+rand.Intn(15)) * time.Millisecond)
	}
}

// Editor flips status, notes and interests through full updates. It never
// touches remarks, so the appender's count stays checkable.
func Editor(ctx context.Context, svc *customer.Service, id string, stop <-chan struct{}) error {
	statuses := []string{"pending", "in_progress", "completed", "rejected"}
	keys := customer.InterestKeys()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		pick := rand.Intn(len(keys))
		interests := map[string]any{keys[pick]: true}
		if rand.Intn(2) == 0 {
			interests[keys[(pick+1)%len(keys)]] = nil
		}
		_, err := svc.Update(ctx, id, customer.Input{
			Status:            str(statuses[rand.Intn(len(statuses))]),
			Notes:             str(fmt.Sprintf("edited %d", rand.Int63())),
			PropertyInterests: interests,
			Budget:            num(float64(50000 + rand.Intn(10_000_000))),
		}, customer.Actor{UserID: "stress-editor"})
		if err != nil && !tolerated(err) {
			return fmt.Errorf("update: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

// Creator keeps inserting new enquiries that share one mobile number.
func Creator(ctx context.Context, svc *customer.Service, mobile string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if _, err := svc.Create(ctx, Enquiry(mobile), customer.Actor{UserID: "stress-creator"}); err != nil && !tolerated(err) {
			return fmt.Errorf("create: %w", err)
		}
		time.Sleep(time.Duration(40+rand.Intn(60)) * time.Millisecond)
	}
}

// Reader exercises the lookup paths while writers run.
func Reader(ctx context.Context, svc *customer.Service, id, mobile string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var err error
		switch rand.Intn(3) {
		case 0:
			_, err = svc.GetByID(ctx, id)
		case 1:
			_, err = svc.GetByMobile(ctx, mobile)
		default:
			_, err = svc.ListPending(ctx)
		}
		if err != nil && !tolerated(err) {
			return fmt.Errorf("read: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}
