package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/photosync/proofing/internal/models"
	"github.com/photosync/proofing/internal/repository"
)

func TestClientDirectory_EnsureClient(t *testing.T) {
	ctx := context.Background()

	t.Run("concurrent calls converge on one client", func(t *testing.T) {
		env := newTestEnv(t)

		const workers = 8
		ids := make([]string, workers)
		errs := make([]error, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				c, err := env.clients.EnsureClient(ctx, " Ana@Example.com", "Ana")
				errs[i] = err
				if c != nil {
					ids[i] = c.ID
				}
			}(i)
		}
		wg.Wait()

		for i := 0; i < workers; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, ids[0], ids[i])
		}

		stored, err := env.clientRepo.GetByEmail(ctx, "ana@example.com")
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, ids[0], stored.ID)
	})

	t.Run("backfills a missing name only", func(t *testing.T) {
		env := newTestEnv(t)

		first, err := env.clients.EnsureClient(ctx, "bo@example.com", "")
		require.NoError(t, err)
		assert.Nil(t, first.Name)

		named, err := env.clients.EnsureClient(ctx, "BO@example.com", "Bo")
		require.NoError(t, err)
		assert.Equal(t, first.ID, named.ID)
		assert.Equal(t, "Bo", named.DisplayName())

		again, err := env.clients.EnsureClient(ctx, "bo@example.com", "Robert")
		require.NoError(t, err)
		assert.Equal(t, "Bo", again.DisplayName())
	})

	t.Run("rejects missing or malformed email", func(t *testing.T) {
		env := newTestEnv(t)

		_, err := env.clients.EnsureClient(ctx, "  ", "x")
		assert.ErrorIs(t, err, models.ErrEmailRequired)
		assert.ErrorIs(t, err, models.ErrValidation)

		_, err = env.clients.EnsureClient(ctx, "not-an-email", "x")
		assert.ErrorIs(t, err, models.ErrInvalidEmail)
	})

	t.Run("PromoteAnonymous never invents an email", func(t *testing.T) {
		env := newTestEnv(t)

		placeholder, err := env.clients.CreatePlaceholder(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, models.PlaceholderClientName, placeholder.DisplayName())

		promoted, err := env.clients.PromoteAnonymous(ctx, placeholder)
		require.NoError(t, err)
		assert.False(t, promoted.HasEmail())
		assert.Equal(t, placeholder.ID, promoted.ID)
	})
}

func TestSessionService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("anonymous session has no client and a fixed expiry", func(t *testing.T) {
		env := newTestEnv(t)

		s, err := env.sessions.CreateAnonymousSession(ctx, 3)
		require.NoError(t, err)
		assert.False(t, s.HasClient())
		require.NotNil(t, s.ExpiresAt)
		assert.True(t, s.ExpiresAt.Equal(testEpoch.Add(models.DefaultSessionLifetime)))
		assert.NotEmpty(t, s.Token)
	})

	t.Run("invalid album id", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.sessions.CreateAnonymousSession(ctx, 0)
		assert.ErrorIs(t, err, models.ErrInvalidAlbumID)
	})

	t.Run("email session points at the ensured client", func(t *testing.T) {
		env := newTestEnv(t)

		s, err := env.sessions.CreateSession(ctx, 3, "Cy@Example.com", "Cy")
		require.NoError(t, err)
		require.True(t, s.HasClient())

		client, err := env.clientRepo.GetByEmail(ctx, "cy@example.com")
		require.NoError(t, err)
		assert.Equal(t, client.ID, *s.ClientID)
		assert.Equal(t, "Cy", *s.ClientName)
	})

	t.Run("email session requires an email", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.sessions.CreateSession(ctx, 3, "", "Cy")
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("IssueMagicLink mails the link", func(t *testing.T) {
		env := newTestEnv(t)
		env.catalog.addAlbum(3, "Wedding")

		s, link, err := env.sessions.IssueMagicLink(ctx, 3, "dee@example.com", "Dee")
		require.NoError(t, err)
		env.sessions.Wait()

		assert.Equal(t, "https://proof.example.com/albums/3?token="+s.Token, link)
		sent := env.notifier.magicLinksSent()
		require.Len(t, sent, 1)
		assert.Equal(t, "dee@example.com", sent[0].Email)
		assert.Equal(t, "Wedding", sent[0].AlbumTitle)
		assert.Equal(t, link, sent[0].Link)
	})
}

func TestSessionService_LinkEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("is idempotent and thanks once", func(t *testing.T) {
		env := newTestEnv(t)
		env.catalog.addAlbum(5, "Portraits")
		env.catalog.addImage(5, 1, "a.jpg")

		anon, err := env.sessions.CreateAnonymousSession(ctx, 5)
		require.NoError(t, err)

		linked, err := env.sessions.LinkEmailToSession(ctx, anon.Token, "Eve@Example.com", "Eve")
		require.NoError(t, err)
		require.True(t, linked.HasClient())
		assert.Equal(t, "eve@example.com", *linked.ClientEmail)

		again, err := env.sessions.LinkEmailToSession(ctx, anon.Token, "eve@example.com", "Eve")
		require.NoError(t, err)
		assert.Equal(t, *linked.ClientID, *again.ClientID)

		env.sessions.Wait()
		thanks := env.notifier.thankYousSent()
		require.Len(t, thanks, 1)
		assert.Equal(t, "eve@example.com", thanks[0].Email)
		assert.Equal(t, "Portraits", thanks[0].AlbumTitle)
		assert.Equal(t, []string{"https://cdn.example.com/1/medium.jpg"}, thanks[0].Previews)
	})

	t.Run("first email wins", func(t *testing.T) {
		env := newTestEnv(t)
		anon, err := env.sessions.CreateAnonymousSession(ctx, 5)
		require.NoError(t, err)

		_, err = env.sessions.LinkEmailToSession(ctx, anon.Token, "first@example.com", "")
		require.NoError(t, err)
		after, err := env.sessions.LinkEmailToSession(ctx, anon.Token, "second@example.com", "")
		require.NoError(t, err)

		client, err := env.clients.Get(ctx, *after.ClientID)
		require.NoError(t, err)
		assert.Equal(t, "first@example.com", client.EmailAddress())

		env.sessions.Wait()
		assert.Len(t, env.notifier.thankYousSent(), 1)
	})

	t.Run("fills the email of a placeholder client", func(t *testing.T) {
		env := newTestEnv(t)
		anon, err := env.sessions.CreateAnonymousSession(ctx, 5)
		require.NoError(t, err)

		bundle, err := env.sessions.LandingBundle(ctx, anon.Token)
		require.NoError(t, err)
		placeholderID := bundle.Client.ID

		linked, err := env.sessions.LinkEmailToSession(ctx, anon.Token, "fay@example.com", "Fay")
		require.NoError(t, err)
		assert.Equal(t, placeholderID, *linked.ClientID)

		client, err := env.clients.Get(ctx, placeholderID)
		require.NoError(t, err)
		assert.Equal(t, "fay@example.com", client.EmailAddress())
		assert.Equal(t, models.PlaceholderClientName, client.DisplayName())

		env.sessions.Wait()
		assert.Len(t, env.notifier.thankYousSent(), 1)
	})

	t.Run("moves the session to an existing owner of the email", func(t *testing.T) {
		env := newTestEnv(t)
		owner, err := env.clients.EnsureClient(ctx, "gil@example.com", "Gil")
		require.NoError(t, err)

		anon, err := env.sessions.CreateAnonymousSession(ctx, 5)
		require.NoError(t, err)
		_, err = env.sessions.LandingBundle(ctx, anon.Token)
		require.NoError(t, err)

		linked, err := env.sessions.LinkEmailToSession(ctx, anon.Token, "GIL@example.com", "")
		require.NoError(t, err)
		assert.Equal(t, owner.ID, *linked.ClientID)
	})

	t.Run("thank-you failures do not fail the call", func(t *testing.T) {
		env := newTestEnv(t)
		env.notifier.fail("hal@example.com", errors.New("smtp down"))
		anon, err := env.sessions.CreateAnonymousSession(ctx, 5)
		require.NoError(t, err)

		_, err = env.sessions.LinkEmailToSession(ctx, anon.Token, "hal@example.com", "")
		assert.NoError(t, err)
	})

	t.Run("unknown token", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.sessions.LinkEmailToSession(ctx, "nope", "ivy@example.com", "")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestSessionService_LinkEmailConcurrent(t *testing.T) {
	ctx := context.Background()
	emails := []string{"kai@example.com", "lea@example.com", "max@example.com", "nia@example.com", "oli@example.com"}

	linkAll := func(t *testing.T, env *testEnv, token string) []*models.Session {
		t.Helper()
		results := make([]*models.Session, len(emails))
		errs := make([]error, len(emails))
		var wg sync.WaitGroup
		for i, email := range emails {
			wg.Add(1)
			go func(i int, email string) {
				defer wg.Done()
				results[i], errs[i] = env.sessions.LinkEmailToSession(ctx, token, email, "")
			}(i, email)
		}
		wg.Wait()
		for _, err := range errs {
			require.NoError(t, err)
		}
		return results
	}

	assertOneWinner := func(t *testing.T, env *testEnv, results []*models.Session) {
		t.Helper()
		clientID := *results[0].ClientID
		for _, s := range results {
			require.True(t, s.HasClient())
			assert.Equal(t, clientID, *s.ClientID)
		}

		client, err := env.clients.Get(ctx, clientID)
		require.NoError(t, err)
		assert.Contains(t, emails, client.EmailAddress())

		env.sessions.Wait()
		thanks := env.notifier.thankYousSent()
		require.Len(t, thanks, 1)
		assert.Equal(t, client.EmailAddress(), thanks[0].Email)
	}

	t.Run("session without a client", func(t *testing.T) {
		env := newTestEnv(t)
		anon, err := env.sessions.CreateAnonymousSession(ctx, 5)
		require.NoError(t, err)

		assertOneWinner(t, env, linkAll(t, env, anon.Token))
	})

	t.Run("session with a placeholder client", func(t *testing.T) {
		env := newTestEnv(t)
		anon, err := env.sessions.CreateAnonymousSession(ctx, 5)
		require.NoError(t, err)
		bundle, err := env.sessions.LandingBundle(ctx, anon.Token)
		require.NoError(t, err)

		results := linkAll(t, env, anon.Token)
		assert.Equal(t, bundle.Client.ID, *results[0].ClientID)
		assertOneWinner(t, env, results)
	})
}

// claimingClientRepo lets another client take an email right before the
// conditional email write runs.
type claimingClientRepo struct {
	repository.ClientRepo
	claim func(ctx context.Context, email string)
}

func (c *claimingClientRepo) SetEmailIfEmpty(ctx context.Context, id, email, name string) (bool, error) {
	if c.claim != nil {
		c.claim(ctx, email)
		c.claim = nil
	}
	return c.ClientRepo.SetEmailIfEmpty(ctx, id, email, name)
}

func TestSessionService_LinkEmailLosesRaceToOwner(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	var owner *models.Client
	repo := &claimingClientRepo{
		ClientRepo: env.clientRepo,
		claim: func(ctx context.Context, email string) {
			var err error
			owner, err = env.clients.EnsureClient(ctx, email, "Pia")
			require.NoError(t, err)
		},
	}
	sessions := NewSessionService(
		env.sessionRepo,
		env.grantRepo,
		NewClientDirectory(repo),
		env.catalog,
		env.notifier,
		NewLinkBuilder("https://proof.example.com/"),
		models.DefaultSessionLifetime,
	)
	t.Cleanup(sessions.Wait)

	anon, err := sessions.CreateAnonymousSession(ctx, 5)
	require.NoError(t, err)
	bundle, err := sessions.LandingBundle(ctx, anon.Token)
	require.NoError(t, err)

	linked, err := sessions.LinkEmailToSession(ctx, anon.Token, "pia@example.com", "")
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, owner.ID, *linked.ClientID)
	assert.NotEqual(t, bundle.Client.ID, *linked.ClientID)

	placeholder, err := env.clients.Get(ctx, bundle.Client.ID)
	require.NoError(t, err)
	assert.False(t, placeholder.HasEmail())

	sessions.Wait()
	assert.Len(t, env.notifier.thankYousSent(), 1)
}

func TestSessionService_ValidateAndAccess(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown, expired and empty tokens", func(t *testing.T) {
		env := newTestEnv(t)
		s, err := env.sessions.CreateAnonymousSession(ctx, 3)
		require.NoError(t, err)

		_, err = env.sessions.Validate(ctx, "missing")
		assert.ErrorIs(t, err, models.ErrSessionNotFound)

		_, err = env.sessions.Validate(ctx, "")
		assert.ErrorIs(t, err, models.ErrTokenRequired)

		found, err := env.sessions.Validate(ctx, s.Token)
		require.NoError(t, err)
		assert.Equal(t, s.ID, found.ID)

		env.clock.Set(testEpoch.Add(models.DefaultSessionLifetime))
		_, err = env.sessions.Validate(ctx, s.Token)
		assert.ErrorIs(t, err, models.ErrSessionNotFound)
	})

	t.Run("primary album needs no grant, others do", func(t *testing.T) {
		env := newTestEnv(t)
		s, err := env.sessions.CreateSession(ctx, 3, "jo@example.com", "")
		require.NoError(t, err)

		scoped, err := env.sessions.AssertAccess(ctx, s.Token, 3)
		require.NoError(t, err)
		assert.Equal(t, int64(3), scoped.PrimaryAlbumID)

		_, err = env.sessions.AssertAccess(ctx, s.Token, 9)
		assert.ErrorIs(t, err, models.ErrForbidden)
		assert.ErrorIs(t, err, models.ErrAlbumNotGranted)

		require.NoError(t, env.sessions.AddAlbumGrant(ctx, s.Token, 9))

		scoped, err = env.sessions.AssertAccess(ctx, s.Token, 9)
		require.NoError(t, err)
		assert.Equal(t, int64(9), scoped.PrimaryAlbumID)
		assert.Equal(t, s.ID, scoped.ID)
	})

	t.Run("grants are refused to anonymous sessions", func(t *testing.T) {
		env := newTestEnv(t)
		s, err := env.sessions.CreateAnonymousSession(ctx, 3)
		require.NoError(t, err)

		err = env.sessions.AddAlbumGrant(ctx, s.Token, 9)
		assert.ErrorIs(t, err, models.ErrAnonymousSession)
		assert.ErrorIs(t, err, models.ErrForbidden)
	})

	t.Run("grant for the primary album or a repeated grant is a no-op", func(t *testing.T) {
		env := newTestEnv(t)
		s, err := env.sessions.CreateSession(ctx, 3, "kim@example.com", "")
		require.NoError(t, err)

		require.NoError(t, env.sessions.AddAlbumGrant(ctx, s.Token, 3))
		require.NoError(t, env.sessions.AddAlbumGrant(ctx, s.Token, 9))
		require.NoError(t, env.sessions.AddAlbumGrant(ctx, s.Token, 9))

		grants, err := env.grantRepo.ListBySessionID(ctx, s.ID)
		require.NoError(t, err)
		require.Len(t, grants, 1)
		assert.Equal(t, int64(9), grants[0].AlbumID)
	})
}

func TestSessionService_LandingBundle(t *testing.T) {
	ctx := context.Background()

	t.Run("flattens sessions and grants without duplicates", func(t *testing.T) {
		env := newTestEnv(t)
		env.catalog.addAlbum(3, "Ceremony")
		env.catalog.addAlbum(9, "Reception")

		x, err := env.sessions.CreateSession(ctx, 3, "lee@example.com", "Lee")
		require.NoError(t, err)
		env.clock.Set(testEpoch.Add(time.Minute))
		y, err := env.sessions.CreateSession(ctx, 3, "lee@example.com", "")
		require.NoError(t, err)
		require.NoError(t, env.sessions.AddAlbumGrant(ctx, y.Token, 9))

		// a stray grant for the primary album must not duplicate Y-on-3
		_, err = env.grantRepo.Add(ctx, models.NewSessionAlbumGrant(y.ID, 3))
		require.NoError(t, err)

		bundle, err := env.sessions.LandingBundle(ctx, y.Token)
		require.NoError(t, err)

		assert.Equal(t, "lee@example.com", bundle.Client.EmailAddress())
		assert.Equal(t, "https://proof.example.com/welcome?token="+x.Token, bundle.LandingLink)

		type pair struct {
			token string
			album int64
		}
		var got []pair
		for _, e := range bundle.Sessions {
			got = append(got, pair{e.Token, e.AlbumID})
		}
		assert.ElementsMatch(t, []pair{{x.Token, 3}, {y.Token, 3}, {y.Token, 9}}, got)

		for _, e := range bundle.Sessions {
			if e.AlbumID == 9 {
				assert.Equal(t, "Reception", e.AlbumTitle)
				assert.False(t, e.IsPrimary)
				assert.Equal(t, "https://proof.example.com/albums/9?token="+y.Token, e.MagicLink)
			}
		}
	})

	t.Run("anonymous session gets a placeholder client", func(t *testing.T) {
		env := newTestEnv(t)
		s, err := env.sessions.CreateAnonymousSession(ctx, 4)
		require.NoError(t, err)

		bundle, err := env.sessions.LandingBundle(ctx, s.Token)
		require.NoError(t, err)
		require.NotNil(t, bundle.Client)
		assert.False(t, bundle.Client.HasEmail())
		assert.Equal(t, models.PlaceholderClientName, bundle.Client.DisplayName())
		require.Len(t, bundle.Sessions, 1)
		assert.Equal(t, int64(4), bundle.Sessions[0].AlbumID)

		again, err := env.sessions.LandingBundle(ctx, s.Token)
		require.NoError(t, err)
		assert.Equal(t, bundle.Client.ID, again.Client.ID)
	})

	t.Run("catalog outage surfaces", func(t *testing.T) {
		env := newTestEnv(t)
		env.catalog.getAlbumErr = models.Transient("catalog unavailable", errors.New("timeout"))
		s, err := env.sessions.CreateSession(ctx, 4, "mo@example.com", "")
		require.NoError(t, err)

		_, err = env.sessions.LandingBundle(ctx, s.Token)
		assert.True(t, models.IsRetryable(err))
	})
}

func TestSessionService_RecipientsForAlbum(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	a1, err := env.sessions.CreateSession(ctx, 7, "Nia@Example.com", "Nia")
	require.NoError(t, err)
	a2, err := env.sessions.CreateSession(ctx, 2, "nia@example.com", "")
	require.NoError(t, err)
	require.NoError(t, env.sessions.AddAlbumGrant(ctx, a2.Token, 7))

	other, err := env.sessions.CreateSession(ctx, 7, "oz@example.com", "Oz")
	require.NoError(t, err)

	_, err = env.sessions.CreateAnonymousSession(ctx, 7)
	require.NoError(t, err)

	expired, err := env.sessions.CreateSession(ctx, 7, "old@example.com", "")
	require.NoError(t, err)
	past := testEpoch.Add(-time.Hour)
	_, err = env.db.Exec("UPDATE sessions SET expires_at = ? WHERE id = ?", past, expired.ID)
	require.NoError(t, err)

	recipients, err := env.sessions.RecipientsForAlbum(ctx, 7, testEpoch)
	require.NoError(t, err)
	require.Len(t, recipients, 2)

	byEmail := make(map[string]models.DigestRecipient)
	for _, r := range recipients {
		byEmail[r.Email] = r
	}

	nia := byEmail["nia@example.com"]
	assert.Equal(t, "Nia", nia.Name)
	assert.ElementsMatch(t, []string{
		"https://proof.example.com/albums/7?token=" + a1.Token,
		"https://proof.example.com/albums/7?token=" + a2.Token,
	}, nia.Links)
	assert.NotEmpty(t, nia.LandingLink)

	oz := byEmail["oz@example.com"]
	assert.Equal(t, []string{"https://proof.example.com/albums/7?token=" + other.Token}, oz.Links)
}
