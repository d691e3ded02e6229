package mcp

// VMExecuteInput is the input for the vm_execute MCP tool.
type VMExecuteInput struct {
	Command string `json:"command" jsonschema:"Shell command to run in the VM"`
	Timeout int    `json:"timeout,omitempty" jsonschema:"Max seconds to wait for the command. Default: server default"`
}

// VMExecuteOutput is the output for the vm_execute MCP tool.
type VMExecuteOutput struct {
	Output string `json:"output" jsonschema:"Combined stdout and stderr of the command"`
}

// ReadFileInput is the input for the read_file MCP tool.
type ReadFileInput struct {
	Path string `json:"path" jsonschema:"Absolute path of the file to read"`
}

// ReadFileOutput is the output for the read_file MCP tool.
type ReadFileOutput struct {
	Content string `json:"content" jsonschema:"File contents"`
}

// WriteFileInput is the input for the write_file MCP tool.
type WriteFileInput struct {
	Path    string `json:"path" jsonschema:"Absolute path of the file to write"`
	Content string `json:"content" jsonschema:"Content to write"`
}

// WriteFileOutput is the output for the write_file MCP tool.
type WriteFileOutput struct {
	Message string `json:"message" jsonschema:"Server confirmation message"`
}

// ListDirInput is the input for the list_dir MCP tool.
type ListDirInput struct {
	Path string `json:"path" jsonschema:"Absolute path of the directory to list"`
}

// DirEntryInfo is one entry returned by list_dir.
type DirEntryInfo struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
}

// ListDirOutput is the output for the list_dir MCP tool.
type ListDirOutput struct {
	Entries []DirEntryInfo `json:"entries"`
	Count   int            `json:"count"`
}

// SendNotificationInput is the input for the send_notification MCP tool.
type SendNotificationInput struct {
	Message string `json:"message" jsonschema:"Notification text to deliver to the user"`
}

// SendNotificationOutput is the output for the send_notification MCP tool.
type SendNotificationOutput struct {
	Status string `json:"status" jsonschema:"Delivery status: delivered"`
}

// TeamChatInput is the input for the team_chat MCP tool.
type TeamChatInput struct {
	Prompt string `json:"prompt" jsonschema:"Message to send to the team chat assistant"`
	Think  bool   `json:"think,omitempty" jsonschema:"Enable extended thinking for this turn"`
}

// TeamChatOutput is the output for the team_chat MCP tool.
type TeamChatOutput struct {
	Reply string `json:"reply" jsonschema:"The assistant's full reply"`
}
