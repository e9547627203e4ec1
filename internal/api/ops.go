// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/periscope-app/periscope/internal/event"
)

// Login bootstraps a session with Basic credentials. A successful
// response publishes either the two-factor challenge or the current
// user.
func (c *Client) Login(ctx context.Context, username, password string) error {
	resp := c.request(ctx, http.MethodGet, "auth/user", nil, nil, &basicAuth{username, password})
	if err := resp.Err(); err != nil {
		return err
	}
	c.publishCurrentUser(resp.Data)
	return nil
}

// GetCurrentUser fetches the account over the cookie session, resuming
// it if the cookie is still valid.
func (c *Client) GetCurrentUser(ctx context.Context) error {
	resp := c.request(ctx, http.MethodGet, "auth/user", nil, nil, nil)
	if err := resp.Err(); err != nil {
		return err
	}
	c.publishCurrentUser(resp.Data)
	return nil
}

func (c *Client) publishCurrentUser(data json.RawMessage) {
	var head struct {
		RequiresTwoFactorAuth []string `json:"requiresTwoFactorAuth"`
	}
	if err := json.Unmarshal(data, &head); err == nil && len(head.RequiresTwoFactorAuth) > 0 {
		c.bus.Publish(event.TopicUserTwoFA, event.Raw{JSON: data})
		return
	}
	c.bus.Publish(event.TopicUserCurrent, event.Raw{JSON: data})
}

// VerifyTOTP answers a two-factor challenge with an authenticator code.
func (c *Client) VerifyTOTP(ctx context.Context, code string) error {
	return c.verifyTwoFactor(ctx, "auth/twofactorauth/totp/verify", code)
}

// VerifyOTP answers a two-factor challenge with a recovery code.
func (c *Client) VerifyOTP(ctx context.Context, code string) error {
	return c.verifyTwoFactor(ctx, "auth/twofactorauth/otp/verify", code)
}

func (c *Client) verifyTwoFactor(ctx context.Context, path, code string) error {
	resp := c.request(ctx, http.MethodPost, path, nil, map[string]string{"code": code}, nil)
	if err := resp.Err(); err != nil {
		return err
	}
	var verified struct {
		Verified bool `json:"verified"`
	}
	if err := json.Unmarshal(resp.Data, &verified); err != nil || !verified.Verified {
		return &Error{Status: http.StatusUnauthorized, Message: "two-factor code rejected"}
	}
	return nil
}

// GetAuthToken fetches the realtime pipeline token and publishes it.
func (c *Client) GetAuthToken(ctx context.Context) (string, error) {
	resp := c.request(ctx, http.MethodGet, "auth", nil, nil, nil)
	if err := resp.Err(); err != nil {
		return "", err
	}
	var auth struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Data, &auth); err != nil || auth.Token == "" {
		return "", &Error{Status: resp.Status, Message: "auth response carried no token"}
	}
	c.bus.Publish(event.TopicAuth, event.AuthToken{Token: auth.Token})
	return auth.Token, nil
}

// Logout ends the remote session.
func (c *Client) Logout(ctx context.Context) error {
	resp := c.request(ctx, http.MethodPut, "logout", nil, nil, nil)
	return resp.Err()
}

// GetUser fetches one user.
func (c *Client) GetUser(ctx context.Context, userID string) error {
	resp := c.request(ctx, http.MethodGet, "users/"+url.PathEscape(userID), nil, nil, nil)
	if err := resp.Err(); err != nil {
		return err
	}
	c.bus.Publish(event.TopicUser, event.Raw{ID: userID, JSON: resp.Data})
	return nil
}

// UserSearch holds the optional user listing filters.
type UserSearch struct {
	Search string
	Sort   string
	Order  string
}

// GetUsers fetches a page of the user listing, returning the record
// count.
func (c *Client) GetUsers(ctx context.Context, n, offset int, search UserSearch) (int, error) {
	query := pageQuery(n, offset)
	if search.Search != "" {
		query.Set("search", search.Search)
	}
	if search.Sort != "" {
		query.Set("sort", search.Sort)
	}
	if search.Order != "" {
		query.Set("order", search.Order)
	}
	return c.publishList(ctx, "users", query, event.TopicUserList)
}

// GetFriends fetches a page of the friend listing, split by the offline
// flag, returning the record count.
func (c *Client) GetFriends(ctx context.Context, n, offset int, offline bool) (int, error) {
	query := pageQuery(n, offset)
	query.Set("offline", strconv.FormatBool(offline))
	return c.publishList(ctx, "auth/user/friends", query, event.TopicFriendList)
}

// DeleteFriend removes a friendship.
func (c *Client) DeleteFriend(ctx context.Context, userID string) error {
	resp := c.request(ctx, http.MethodDelete, "auth/user/friends/"+url.PathEscape(userID), nil, nil, nil)
	if err := resp.Err(); err != nil {
		return err
	}
	c.bus.Publish(event.TopicFriendDelete, event.FriendRef{UserID: userID})
	return nil
}

// SendFriendRequest asks another user for friendship.
func (c *Client) SendFriendRequest(ctx context.Context, userID string) error {
	resp := c.request(ctx, http.MethodPost, "user/"+url.PathEscape(userID)+"/friendRequest", nil, nil, nil)
	return resp.Err()
}

// GetWorld fetches one world.
func (c *Client) GetWorld(ctx context.Context, worldID string) error {
	resp := c.request(ctx, http.MethodGet, "worlds/"+url.PathEscape(worldID), nil, nil, nil)
	if err := resp.Err(); err != nil {
		return err
	}
	c.bus.Publish(event.TopicWorld, event.Raw{ID: worldID, JSON: resp.Data})
	return nil
}

// GetWorlds fetches a page of the world listing.
func (c *Client) GetWorlds(ctx context.Context, n, offset int) (int, error) {
	return c.publishList(ctx, "worlds", pageQuery(n, offset), event.TopicWorldList)
}

// GetAvatar fetches one avatar.
func (c *Client) GetAvatar(ctx context.Context, avatarID string) error {
	resp := c.request(ctx, http.MethodGet, "avatars/"+url.PathEscape(avatarID), nil, nil, nil)
	if err := resp.Err(); err != nil {
		return err
	}
	c.bus.Publish(event.TopicAvatar, event.Raw{ID: avatarID, JSON: resp.Data})
	return nil
}

// GetAvatars fetches a page of the avatar listing.
func (c *Client) GetAvatars(ctx context.Context, n, offset int) (int, error) {
	return c.publishList(ctx, "avatars", pageQuery(n, offset), event.TopicAvatarList)
}

// GetNotifications fetches a page of the notification listing.
func (c *Client) GetNotifications(ctx context.Context, n, offset int) (int, error) {
	return c.publishList(ctx, "auth/user/notifications", pageQuery(n, offset), event.TopicNotificationList)
}

// AcceptNotification accepts a friend-request notification.
func (c *Client) AcceptNotification(ctx context.Context, notificationID string) error {
	path := "auth/user/notifications/" + url.PathEscape(notificationID) + "/accept"
	resp := c.request(ctx, http.MethodPut, path, nil, nil, nil)
	if err := resp.Err(); err != nil {
		return err
	}
	c.bus.Publish(event.TopicNotificationAccept, event.NotificationRef{NotificationID: notificationID})
	return nil
}

// HideNotification dismisses a notification.
func (c *Client) HideNotification(ctx context.Context, notificationID string) error {
	path := "auth/user/notifications/" + url.PathEscape(notificationID) + "/hide"
	resp := c.request(ctx, http.MethodPut, path, nil, nil, nil)
	if err := resp.Err(); err != nil {
		return err
	}
	c.bus.Publish(event.TopicNotificationHide, event.NotificationRef{NotificationID: notificationID})
	return nil
}

// GetPlayerModerations fetches the full moderation listing. The remote
// side does not page it.
func (c *Client) GetPlayerModerations(ctx context.Context) (int, error) {
	return c.publishList(ctx, "auth/user/playermoderations", nil, event.TopicModerationList)
}

// SendPlayerModeration moderates another user (block, mute, hide).
func (c *Client) SendPlayerModeration(ctx context.Context, targetUserID, modType string) error {
	body := map[string]string{"moderated": targetUserID, "type": modType}
	resp := c.request(ctx, http.MethodPost, "auth/user/playermoderations", nil, body, nil)
	if err := resp.Err(); err != nil {
		return err
	}
	c.bus.Publish(event.TopicModerationSend, event.Raw{JSON: resp.Data})
	return nil
}

// DeletePlayerModeration lifts a moderation against another user.
func (c *Client) DeletePlayerModeration(ctx context.Context, targetUserID, modType string) error {
	body := map[string]string{"moderated": targetUserID, "type": modType}
	resp := c.request(ctx, http.MethodPut, "auth/user/unplayermoderate", nil, body, nil)
	if err := resp.Err(); err != nil {
		return err
	}
	c.bus.Publish(event.TopicModerationDelete, event.ModerationDelete{
		Type:         modType,
		TargetUserID: targetUserID,
	})
	return nil
}

// GetFavorites fetches a page of the favorite listing.
func (c *Client) GetFavorites(ctx context.Context, n, offset int) (int, error) {
	return c.publishList(ctx, "favorites", pageQuery(n, offset), event.TopicFavoriteList)
}

// AddFavorite favorites an object into a group.
func (c *Client) AddFavorite(ctx context.Context, favType, objectID string, tags []string) error {
	body := map[string]any{"type": favType, "favoriteId": objectID, "tags": tags}
	resp := c.request(ctx, http.MethodPost, "favorites", nil, body, nil)
	if err := resp.Err(); err != nil {
		return err
	}
	c.bus.Publish(event.TopicFavoriteAdd, event.Raw{JSON: resp.Data})
	return nil
}

// DeleteFavorite removes a favorite by the favorited object's id.
func (c *Client) DeleteFavorite(ctx context.Context, objectID string) error {
	resp := c.request(ctx, http.MethodDelete, "favorites/"+url.PathEscape(objectID), nil, nil, nil)
	if err := resp.Err(); err != nil {
		return err
	}
	c.bus.Publish(event.TopicFavoriteDelete, event.FavoriteDelete{ObjectID: objectID})
	return nil
}

// GetFavoriteGroups fetches a page of the favorite-group listing.
func (c *Client) GetFavoriteGroups(ctx context.Context, n, offset int) (int, error) {
	return c.publishList(ctx, "favorite/groups", pageQuery(n, offset), event.TopicFavoriteGroupList)
}

// SaveFavoriteGroup renames a favorite group or changes its visibility.
func (c *Client) SaveFavoriteGroup(ctx context.Context, userID, favType, group, displayName, visibility string) error {
	path := "favorite/group/" + url.PathEscape(favType) + "/" + url.PathEscape(group) + "/" + url.PathEscape(userID)
	body := map[string]string{}
	if displayName != "" {
		body["displayName"] = displayName
	}
	if visibility != "" {
		body["visibility"] = visibility
	}
	resp := c.request(ctx, http.MethodPut, path, nil, body, nil)
	if err := resp.Err(); err != nil {
		return err
	}
	c.bus.Publish(event.TopicFavoriteGroupSave, event.Raw{JSON: resp.Data})
	return nil
}

// ClearFavoriteGroup empties a favorite group remotely, then cascades the
// clear locally.
func (c *Client) ClearFavoriteGroup(ctx context.Context, userID, favType, group string) error {
	path := "favorite/group/" + url.PathEscape(favType) + "/" + url.PathEscape(group) + "/" + url.PathEscape(userID)
	resp := c.request(ctx, http.MethodDelete, path, nil, nil, nil)
	if err := resp.Err(); err != nil {
		return err
	}
	c.bus.Publish(event.TopicFavoriteGroupClear, event.FavoriteGroupClear{Type: favType, Name: group})
	return nil
}

// GetFavoriteWorlds fetches a page of the favorited-world hydration
// listing.
func (c *Client) GetFavoriteWorlds(ctx context.Context, n, offset int) (int, error) {
	return c.publishList(ctx, "worlds/favorites", pageQuery(n, offset), event.TopicFavoriteWorldList)
}

// GetFavoriteAvatars fetches a page of the favorited-avatar hydration
// listing for one group tag.
func (c *Client) GetFavoriteAvatars(ctx context.Context, n, offset int, tag string) (int, error) {
	query := pageQuery(n, offset)
	if tag != "" {
		query.Set("tag", tag)
	}
	return c.publishList(ctx, "avatars/favorites", query, event.TopicFavoriteAvatarList)
}

// publishList fetches a listing page and fans it out on the given topic,
// returning how many records the page carried.
func (c *Client) publishList(ctx context.Context, path string, query url.Values, topic string) (int, error) {
	resp := c.request(ctx, http.MethodGet, path, query, nil, nil)
	if err := resp.Err(); err != nil {
		return 0, err
	}
	items, err := listItems(resp.Data)
	if err != nil {
		return 0, err
	}
	c.bus.Publish(topic, event.List{Items: items})
	return len(items), nil
}

func pageQuery(n, offset int) url.Values {
	query := url.Values{}
	query.Set("n", strconv.Itoa(n))
	query.Set("offset", strconv.Itoa(offset))
	return query
}
