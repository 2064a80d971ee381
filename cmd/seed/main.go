package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"

	"github.com/caffeinepub/booking-engine/internal/booking"
	"github.com/caffeinepub/booking-engine/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	engine := booking.NewEngine(booking.NewPgRepository(pool), booking.NewKeyLocker(), booking.DefaultGranularityMinutes)

	if err := seedBusinesses(context.Background(), engine, 25); err != nil {
		log.Fatalf("seed businesses: %v", err)
	}

	log.Println("seed complete")
}

func seedBusinesses(ctx context.Context, engine *booking.Engine, count int) error {
	log.Printf("seeding %d businesses", count)

	timeZones := []string{
		"America/New_York",
		"America/Chicago",
		"America/Los_Angeles",
		"Europe/London",
		"Europe/Berlin",
		"Asia/Tokyo",
	}
	serviceNames := []string{
		"Consultation",
		"Haircut",
		"Deep Tissue Massage",
		"Dental Cleaning",
		"Eye Exam",
		"Personal Training",
		"Manicure",
		"Physiotherapy Session",
	}

	for i := 0; i < count; i++ {
		tz := timeZones[gofakeit.Number(0, len(timeZones)-1)]
		b, err := engine.CreateBusiness(ctx, "", gofakeit.Company(), tz, 0)
		if err != nil {
			return fmt.Errorf("create business: %w", err)
		}

		staffCount := gofakeit.Number(1, 4)
		var staffIDs []string
		for j := 0; j < staffCount; j++ {
			s, err := engine.AddStaff(ctx, b.ID, booking.Staff{Name: gofakeit.Name()})
			if err != nil {
				return fmt.Errorf("add staff: %w", err)
			}
			staffIDs = append(staffIDs, s.ID)
		}

		for j := 0; j < gofakeit.Number(2, 5); j++ {
			svc := booking.Service{
				Name:            serviceNames[gofakeit.Number(0, len(serviceNames)-1)],
				DurationMinutes: 15 * gofakeit.Number(1, 6),
			}
			if gofakeit.Bool() {
				svc.Price = &booking.Price{
					Currency: "USD",
					Amount:   decimal.NewFromInt(int64(gofakeit.Number(20, 250))),
				}
			}
			if _, err := engine.AddService(ctx, b.ID, svc); err != nil {
				return fmt.Errorf("add service: %w", err)
			}
		}

		for j := 0; j < gofakeit.Number(5, 20); j++ {
			phone := gofakeit.Phone()
			email := gofakeit.Email()
			_, err := engine.AddClient(ctx, b.ID, booking.Client{
				Name:  gofakeit.Name(),
				Phone: &phone,
				Email: &email,
			})
			if err != nil {
				return fmt.Errorf("add client: %w", err)
			}
		}

		// Weekday hours for every staff member, 9:00-17:00 give or take.
		for _, staffID := range staffIDs {
			for day := 1; day <= 5; day++ {
				start := 60 * gofakeit.Number(8, 10)
				end := 60 * gofakeit.Number(16, 19)
				err := engine.SetAvailability(ctx, b.ID, booking.AvailabilityRule{
					StaffID:     staffID,
					DayOfWeek:   day,
					StartMinute: start,
					EndMinute:   end,
				})
				if err != nil {
					return fmt.Errorf("set availability: %w", err)
				}
			}
		}

		if (i+1)%5 == 0 {
			log.Printf("businesses seeded: %d/%d", i+1, count)
		}
	}

	log.Println("businesses seeded")
	return nil
}
