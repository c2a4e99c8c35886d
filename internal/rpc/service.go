package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"

	"github.com/MEKXH/warden/internal/executor"
	"github.com/MEKXH/warden/internal/wire"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "tool.ToolExecutor"

// ToolExecutorServer is the server API of the tool executor service.
type ToolExecutorServer interface {
	ReadFile(context.Context, *FileReadRequest) (*FileReadResponse, error)
	WriteFile(context.Context, *FileWriteRequest) (*FileWriteResponse, error)
	ListDirectory(context.Context, *FileListRequest) (*FileListResponse, error)
	FileExists(context.Context, *FileExistsRequest) (*FileExistsResponse, error)
	GetFileInfo(context.Context, *FileInfoRequest) (*FileInfoResponse, error)
	ExecuteCommand(context.Context, *CommandRequest) (*CommandResponse, error)
	GetWorkingDirectory(context.Context, *EmptyRequest) (*DirectoryResponse, error)
	GetEnvironmentVariable(context.Context, *EnvVarRequest) (*EnvVarResponse, error)
}

// Service implements ToolExecutorServer on top of the executors. Every
// failure is reported in the response status; the returned error is always
// nil.
type Service struct {
	files    *executor.Files
	commands *executor.Commands
}

func NewService(files *executor.Files, commands *executor.Commands) *Service {
	return &Service{files: files, commands: commands}
}

func (s *Service) ReadFile(ctx context.Context, req *FileReadRequest) (*FileReadResponse, error) {
	data, err := s.files.Read(ctx, req.Path)
	if err != nil {
		return &FileReadResponse{Status: wire.StatusOf(err)}, nil
	}
	content, encoding := wire.EncodeContent(data)
	return &FileReadResponse{Status: wire.StatusOf(nil), Content: content, Encoding: encoding}, nil
}

func (s *Service) WriteFile(ctx context.Context, req *FileWriteRequest) (*FileWriteResponse, error) {
	content, err := wire.DecodeContent(req.Content, req.Encoding)
	if err != nil {
		return &FileWriteResponse{Status: wire.StatusOf(err)}, nil
	}
	return &FileWriteResponse{Status: wire.StatusOf(s.files.Write(ctx, req.Path, content))}, nil
}

func (s *Service) ListDirectory(ctx context.Context, req *FileListRequest) (*FileListResponse, error) {
	names, err := s.files.List(ctx, req.Path)
	entries := make([]FileEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, FileEntry{Name: name})
	}
	return &FileListResponse{Status: wire.StatusOf(err), Entries: entries}, nil
}

func (s *Service) FileExists(ctx context.Context, req *FileExistsRequest) (*FileExistsResponse, error) {
	ok, err := s.files.Exists(ctx, req.Path)
	return &FileExistsResponse{Status: wire.StatusOf(err), Exists: ok}, nil
}

func (s *Service) GetFileInfo(ctx context.Context, req *FileInfoRequest) (*FileInfoResponse, error) {
	info, err := s.files.Stat(ctx, req.Path)
	return &FileInfoResponse{
		Status:   wire.StatusOf(err),
		Size:     info.Size,
		IsDir:    info.IsDirectory,
		IsFile:   info.IsFile,
		Readonly: info.ReadOnly,
	}, nil
}

func (s *Service) ExecuteCommand(ctx context.Context, req *CommandRequest) (*CommandResponse, error) {
	line := wire.JoinCommand(req.Command, req.Args)
	res, err := s.commands.ExecuteWithTimeout(ctx, line, time.Duration(req.TimeoutSeconds)*time.Second)
	if err != nil {
		return &CommandResponse{Status: wire.StatusOf(err), ExitCode: -1}, nil
	}
	slog.Debug("command finished", "exit_code", res.ExitCode, "duration", res.Duration)
	st := wire.StatusOf(nil)
	st.Success = res.Succeeded
	return &CommandResponse{
		Status:    st,
		Stdout:    res.Stdout,
		Stderr:    res.Stderr,
		ExitCode:  int32(res.ExitCode),
		Truncated: res.Truncated,
	}, nil
}

func (s *Service) GetWorkingDirectory(ctx context.Context, _ *EmptyRequest) (*DirectoryResponse, error) {
	path, err := s.commands.WorkingDirectory()
	return &DirectoryResponse{Status: wire.StatusOf(err), Path: path}, nil
}

func (s *Service) GetEnvironmentVariable(ctx context.Context, req *EnvVarRequest) (*EnvVarResponse, error) {
	value, ok := s.commands.Environment(req.Name)
	if !ok {
		return &EnvVarResponse{Status: wire.StatusOf(fmt.Errorf("%w: environment variable %q", executor.ErrNotFound, req.Name))}, nil
	}
	return &EnvVarResponse{Status: wire.StatusOf(nil), Value: value}, nil
}

// unaryHandler adapts a typed method to grpc's handler signature.
func unaryHandler[Req any, Resp any](method string, call func(ToolExecutorServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ToolExecutorServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ToolExecutorServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes the tool executor service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ToolExecutorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ReadFile", Handler: unaryHandler("ReadFile", ToolExecutorServer.ReadFile)},
		{MethodName: "WriteFile", Handler: unaryHandler("WriteFile", ToolExecutorServer.WriteFile)},
		{MethodName: "ListDirectory", Handler: unaryHandler("ListDirectory", ToolExecutorServer.ListDirectory)},
		{MethodName: "FileExists", Handler: unaryHandler("FileExists", ToolExecutorServer.FileExists)},
		{MethodName: "GetFileInfo", Handler: unaryHandler("GetFileInfo", ToolExecutorServer.GetFileInfo)},
		{MethodName: "ExecuteCommand", Handler: unaryHandler("ExecuteCommand", ToolExecutorServer.ExecuteCommand)},
		{MethodName: "GetWorkingDirectory", Handler: unaryHandler("GetWorkingDirectory", ToolExecutorServer.GetWorkingDirectory)},
		{MethodName: "GetEnvironmentVariable", Handler: unaryHandler("GetEnvironmentVariable", ToolExecutorServer.GetEnvironmentVariable)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tool.proto",
}

// RegisterToolExecutorServer registers srv on s.
func RegisterToolExecutorServer(s grpc.ServiceRegistrar, srv ToolExecutorServer) {
	s.RegisterService(&ServiceDesc, srv)
}
