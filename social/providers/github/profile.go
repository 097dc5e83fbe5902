package github

import (
	"strconv"

	"github.com/klasshub/go-lms-auth/social"
)

// githubUser mirrors the fields we read from the GitHub /user endpoint.
type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
	Company   string `json:"company"`
	Blog      string `json:"blog"`
	Location  string `json:"location"`
	Bio       string `json:"bio"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// profile converts the API payload into the provider-neutral shape. The
// email arrives separately since GitHub reports it through /user/emails.
func (u *githubUser) profile(email string, emailVerified bool) *social.SocialProfile {
	if u == nil {
		return nil
	}

	return &social.SocialProfile{
		ProviderUserID: strconv.FormatInt(u.ID, 10),
		Provider:       providerName,
		Email:          email,
		EmailVerified:  emailVerified,
		Name:           u.Name,
		Username:       u.Login,
		AvatarURL:      u.AvatarURL,
		ProfileURL:     u.HTMLURL,
		Raw: map[string]any{
			"id":         u.ID,
			"login":      u.Login,
			"name":       u.Name,
			"email":      email,
			"avatar_url": u.AvatarURL,
			"html_url":   u.HTMLURL,
			"company":    u.Company,
			"blog":       u.Blog,
			"location":   u.Location,
			"bio":        u.Bio,
		},
	}
}
