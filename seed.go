package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"gitea.kood.tech/petrkubec/soulmate/backend/filter"
	"gitea.kood.tech/petrkubec/soulmate/backend/store"
)

const seedPassword = "password123"

var (
	seedFirstNames = []string{"Aarav", "Priya", "Rohan", "Ananya", "Vikram", "Meera", "Arjun", "Kavya", "Ishaan", "Diya", "Karan", "Sneha"}
	seedLastNames  = []string{"Sharma", "Iyer", "Patel", "Reddy", "Nair", "Gupta", "Singh", "Das", "Menon", "Kapoor"}
	seedInterests  = []string{"Travel", "Music", "Cooking", "Reading", "Yoga", "Cricket", "Photography", "Dance", "Hiking", "Movies"}
	seedImages     = []string{
		"https://images.pexels.com/photos/774909/pexels-photo-774909.jpeg?auto=compress&cs=tinysrgb&w=1260&h=750",
		"https://images.pexels.com/photos/1222271/pexels-photo-1222271.jpeg?auto=compress&cs=tinysrgb&w=1260&h=750",
		"https://images.pexels.com/photos/1239291/pexels-photo-1239291.jpeg?auto=compress&cs=tinysrgb&w=1260&h=750",
		"https://images.pexels.com/photos/415829/pexels-photo-415829.jpeg?auto=compress&cs=tinysrgb&w=1260&h=750",
	}
)

// profileSaver is the part of the store the seeder writes through.
type profileSaver interface {
	CreateUser(ctx context.Context, email, passwordHash string) (store.User, error)
	UserByEmail(ctx context.Context, email string) (store.User, error)
	SaveProfile(ctx context.Context, d store.ProfileDetail) error
}

func runSeed(ctx context.Context, count int, seed int64) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	db, err := openDB(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := seedProfiles(ctx, store.NewPostgres(db), count, seed)
	if err != nil {
		return err
	}
	log.Info("seeded profiles", zap.Int("count", n), zap.String("password", seedPassword))
	return nil
}

// seedProfiles creates count members with profiles. The same seed always
// yields the same members; rerunning it updates them in place.
func seedProfiles(ctx context.Context, s profileSaver, count int, seed int64) (int, error) {
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), bcrypt.DefaultCost)
	if err != nil {
		return 0, fmt.Errorf("hash seed password: %w", err)
	}

	opts := filter.DefaultOptions()
	for i := 0; i < count; i++ {
		first := seedFirstNames[rng.IntN(len(seedFirstNames))]
		last := seedLastNames[rng.IntN(len(seedLastNames))]
		email := fmt.Sprintf("%s.%s.%d@soulmate.test", strings.ToLower(first), strings.ToLower(last), i)

		user, err := s.CreateUser(ctx, email, string(hash))
		if errors.Is(err, store.ErrDuplicate) {
			user, err = s.UserByEmail(ctx, email)
		}
		if err != nil {
			return i, fmt.Errorf("seed user %s: %w", email, err)
		}

		image := seedImages[rng.IntN(len(seedImages))]
		d := store.ProfileDetail{
			ProfileCard: store.ProfileCard{
				ProfileID:    user.ID,
				FirstName:    first,
				LastName:     last,
				Age:          21 + rng.IntN(20),
				Location:     pickOption(rng, opts.Locations),
				Occupation:   pickOption(rng, opts.Occupations),
				Education:    pickOption(rng, opts.Educations),
				ProfileImage: image,
			},
			Bio:    fmt.Sprintf("Hi, I'm %s. Family oriented and looking for a kind partner.", first),
			Height: fmt.Sprintf("5'%d\"", 1+rng.IntN(11)),
			Images: []store.ProfileImage{{ImageURL: image, IsPrimary: true}},
		}
		for _, j := range rng.Perm(len(seedInterests))[:3] {
			d.Interests = append(d.Interests, store.ProfileInterest{Interest: seedInterests[j]})
		}
		d.Preferences = []store.ProfilePreference{{
			AgeRange:             fmt.Sprintf("%d-%d", d.Age-3, d.Age+5),
			LocationPreference:   pickOption(rng, opts.Locations),
			EducationPreference:  pickOption(rng, opts.Educations),
			OccupationPreference: "Any",
		}}

		if err := s.SaveProfile(ctx, d); err != nil {
			return i, fmt.Errorf("seed profile %s: %w", email, err)
		}
	}
	return count, nil
}

// pickOption returns a random option value, skipping the "Any" entry.
func pickOption(rng *rand.Rand, opts []filter.Option) string {
	var values []string
	for _, o := range opts {
		if o.Value != "" {
			values = append(values, o.Value)
		}
	}
	if len(values) == 0 {
		return ""
	}
	return values[rng.IntN(len(values))]
}
