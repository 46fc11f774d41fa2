package controllers

// credentialsReq is the body of register and login.
type credentialsReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResp is returned by login and register.
type loginResp struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

// createListReq is the body of POST /api/v1/lists.
type createListReq struct {
	Name string `json:"name"`
}

// createTodoResp acknowledges an accepted create.
type createTodoResp struct {
	Status    string `json:"status"`
	CommandID string `json:"commandId"`
	TodoID    string `json:"todoId"`
}
