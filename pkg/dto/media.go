package dto

type AvatarResponse struct {
	PhotoURL  string             `json:"photo_url"`
	Principal *PrincipalResponse `json:"principal"`
}
