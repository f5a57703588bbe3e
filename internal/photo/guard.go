package photo

// authorize allows a caller to act only on their own user record.
func authorize(op string, callerID, userID int64) error {
	if callerID != userID {
		return &Error{Op: op, Kind: Unauthorized}
	}
	return nil
}

// authorizePhoto additionally requires photoID to belong to the user.
// Membership is the ownership check; a photo id that exists but belongs to
// someone else is Unauthorized, not NotFound.
func authorizePhoto(op string, u *User, photoID int64) error {
	if !u.Owns(photoID) {
		return &Error{Op: op, Kind: Unauthorized, Msg: "photo does not belong to this user"}
	}
	return nil
}
