package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls a remote tool executor service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to addr without transport security.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}, opts...)
	conn, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to tool executor: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the gRPC connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func invoke[Resp any](ctx context.Context, c *Client, method string, req any) (*Resp, error) {
	out := new(Resp)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ReadFile(ctx context.Context, req *FileReadRequest) (*FileReadResponse, error) {
	return invoke[FileReadResponse](ctx, c, "ReadFile", req)
}

func (c *Client) WriteFile(ctx context.Context, req *FileWriteRequest) (*FileWriteResponse, error) {
	return invoke[FileWriteResponse](ctx, c, "WriteFile", req)
}

func (c *Client) ListDirectory(ctx context.Context, req *FileListRequest) (*FileListResponse, error) {
	return invoke[FileListResponse](ctx, c, "ListDirectory", req)
}

func (c *Client) FileExists(ctx context.Context, req *FileExistsRequest) (*FileExistsResponse, error) {
	return invoke[FileExistsResponse](ctx, c, "FileExists", req)
}

func (c *Client) GetFileInfo(ctx context.Context, req *FileInfoRequest) (*FileInfoResponse, error) {
	return invoke[FileInfoResponse](ctx, c, "GetFileInfo", req)
}

func (c *Client) ExecuteCommand(ctx context.Context, req *CommandRequest) (*CommandResponse, error) {
	return invoke[CommandResponse](ctx, c, "ExecuteCommand", req)
}

func (c *Client) GetWorkingDirectory(ctx context.Context) (*DirectoryResponse, error) {
	return invoke[DirectoryResponse](ctx, c, "GetWorkingDirectory", &EmptyRequest{})
}

func (c *Client) GetEnvironmentVariable(ctx context.Context, req *EnvVarRequest) (*EnvVarResponse, error) {
	return invoke[EnvVarResponse](ctx, c, "GetEnvironmentVariable", req)
}
