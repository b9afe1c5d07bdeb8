package dto

type ConsentURLResponse struct {
	URL string `json:"url"`
}

type SignUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ProvidersResponse struct {
	Providers []string `json:"providers"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
